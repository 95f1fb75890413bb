// Package spin implements the mutual-exclusion primitive that guards an
// emulated atomic word.
//
// A Lock is exactly one machine word of state so that structures embedding it
// keep a stable binary layout when they are placed in memory shared across
// independently built processes. Acquisition busy-waits: a bounded burst of
// compare-and-swap attempts, then sleeping waits on an escalating schedule
// with random jitter so that contending processes back off instead of burning
// a core. Acquisition cannot fail, it can only delay.
package spin

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
)

// spinsPerDelay is the number of lock attempts made between sleeps once the
// fast path has failed. The holder's critical section is O(1), so most waits
// end inside the first burst.
const spinsPerDelay = 100

// Lock is a spinlock occupying a single uint32. The zero value (and zeroed
// shared memory) is unlocked.
type Lock struct {
	state uint32
}

// The placed layout of structures embedding a Lock is fixed; a Lock must stay
// one 32-bit word.
var _ [4]byte = [unsafe.Sizeof(Lock{})]byte{}

// Init puts the lock into the unlocked state. It must not race with a
// concurrent Acquire on the same lock.
func (l *Lock) Init() {
	atomic.StoreUint32(&l.state, 0)
}

// TryAcquire attempts to take the lock without waiting and reports whether
// it succeeded.
func (l *Lock) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Acquire takes the lock, waiting as long as the current holder needs. There
// is no timeout and no fairness guarantee: a waiter may be overtaken by a
// fresh caller that hits the fast path between its attempts.
func (l *Lock) Acquire() {
	if l.TryAcquire() {
		return
	}
	l.acquireSlow()
}

func (l *Lock) acquireSlow() {
	slowAcquires.Add(1)
	var (
		spins  uint64
		sleeps uint64
		sched  *backoff.ExponentialBackOff
	)
	for {
		for i := 0; i < spinsPerDelay; i++ {
			if l.TryAcquire() {
				// Fold the local tallies into the package counters once,
				// after the lock is held, to keep the wait loop itself free
				// of shared-counter traffic.
				spinRounds.Add(spins)
				sleepDelays.Add(sleeps)
				return
			}
			spins++
			runtime.Gosched()
		}
		if sched == nil {
			sched = newDelaySchedule()
		}
		time.Sleep(sched.NextBackOff())
		sleeps++
	}
}

// Release drops the lock. Calling Release on a lock the caller does not hold
// corrupts the guarded state; there is no detection.
func (l *Lock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// newDelaySchedule builds the sleep schedule for a contended acquisition:
// 1ms doubling up to 1s, with ±50% jitter so that colliding waiters spread
// out. MaxElapsedTime stays zero so the schedule never gives up.
func newDelaySchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
