package spin

import "sync/atomic"

// Contention counters for every Lock in the process. The uncontended fast
// path is never counted; tallies are folded in on slow-path exit.
var (
	slowAcquires atomic.Uint64
	spinRounds   atomic.Uint64
	sleepDelays  atomic.Uint64
)

// Stats is a snapshot of process-wide lock contention.
type Stats struct {
	// SlowAcquires counts acquisitions that missed the fast path.
	SlowAcquires uint64
	// SpinRounds counts individual lock attempts made on the slow path.
	SpinRounds uint64
	// SleepDelays counts sleeps taken after spin bursts were exhausted.
	SleepDelays uint64
}

// ReadStats returns the current contention counters. The three values are
// read independently and may not be mutually consistent under load.
func ReadStats() Stats {
	return Stats{
		SlowAcquires: slowAcquires.Load(),
		SpinRounds:   spinRounds.Load(),
		SleepDelays:  sleepDelays.Load(),
	}
}
