package atomic64

import (
	"unsafe"

	"github.com/srediag/shm-atomics/internal/spin"
)

// Uint64 is a 64-bit word with emulated atomic semantics. The zero value
// (and zeroed shared memory) is an unlocked word holding 0, but Init should
// still be called to make ownership of the slot explicit.
//
// A Uint64 must not be copied after first use: the guard serializes access
// to the value at one address, and a copy would silently split that
// serialization in two.
type Uint64 struct {
	guard spin.Lock
	_     [4]byte // keep value at offset 8 on 32-bit builds too
	value uint64
}

const (
	// PlacedSize is the number of bytes a Uint64 occupies when placed at an
	// offset in a shared region, on every architecture.
	PlacedSize = 16

	// ValueOffset is where the 64-bit value sits inside those PlacedSize
	// bytes. Tools that inspect a region snapshot rather than a live word
	// read the value at this offset.
	ValueOffset = 8
)

// Words are read by independently compiled processes mapping the same
// region; the layout is a wire format. The array types force a compile
// failure if the struct ever drifts from it.
var (
	_ [PlacedSize]byte  = [unsafe.Sizeof(Uint64{})]byte{}
	_ [ValueOffset]byte = [unsafe.Offsetof(Uint64{}.value)]byte{}
)

// Init sets the word to val and puts the guard into the unlocked state.
// Init is one-time setup: it must not race with concurrent use of the same
// word, and there is no failure mode.
func (u *Uint64) Init(val uint64) {
	u.guard.Init()
	u.value = val
}

// CompareExchange atomically compares the word against *expected. On a
// match it stores newval and returns true. On a mismatch it writes the
// value it observed into *expected and returns false.
//
// This is a strong compare-and-swap: a mismatch is reported only when the
// values genuinely differ at the moment of the check. It might look like
// the guard could be skipped when it is already held elsewhere, but that
// would turn this into a weak variant with spurious failures, and lock-free
// algorithms layered on top rely on the strong guarantee for their
// forward-progress arguments.
func (u *Uint64) CompareExchange(expected *uint64, newval uint64) bool {
	u.guard.Acquire()
	ok := u.value == *expected
	*expected = u.value
	if ok {
		u.value = newval
	}
	u.guard.Release()
	return ok
}

// FetchAdd adds delta to the word and returns the value the word held
// before the addition. The delta is signed and the addition wraps with
// two's-complement semantics, so FetchAdd(-1) on 0 yields MaxUint64.
func (u *Uint64) FetchAdd(delta int64) uint64 {
	u.guard.Acquire()
	prev := u.value
	u.value = prev + uint64(delta)
	u.guard.Release()
	return prev
}
