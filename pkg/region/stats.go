//go:build unix

package region

import "sync/atomic"

var (
	createdTotal       atomic.Uint64
	attachedTotal      atomic.Uint64
	publishedTotal     atomic.Uint64
	detachedTotal      atomic.Uint64
	closedTotal        atomic.Uint64
	attachRetriesTotal atomic.Uint64
)

// Stats is a snapshot of the process-wide region lifecycle counters.
type Stats struct {
	Created       uint64
	Attached      uint64
	Published     uint64
	Detached      uint64
	Closed        uint64
	AttachRetries uint64
}

// ReadStats returns the current lifecycle counters.
func ReadStats() Stats {
	return Stats{
		Created:       createdTotal.Load(),
		Attached:      attachedTotal.Load(),
		Published:     publishedTotal.Load(),
		Detached:      detachedTotal.Load(),
		Closed:        closedTotal.Load(),
		AttachRetries: attachRetriesTotal.Load(),
	}
}
