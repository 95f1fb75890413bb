//go:build unix

package counters

import "github.com/srediag/shm-atomics/pkg/atomic64"

// Counter is a handle on one named slot. Handles are cheap; every handle
// for the same name drives the same shared word.
type Counter struct {
	name string
	word *atomic64.Uint64
}

// Name returns the name the counter was registered under.
func (c *Counter) Name() string {
	return c.name
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() uint64 {
	return c.word.AddFetch(1)
}

// Add adds delta, which may be negative, and returns the new value.
func (c *Counter) Add(delta int64) uint64 {
	return c.word.AddFetch(delta)
}

// Value returns the current value.
func (c *Counter) Value() uint64 {
	return c.word.Load()
}
