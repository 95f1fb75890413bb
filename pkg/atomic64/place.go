package atomic64

import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	// ErrOutOfRange reports a placement that does not fit inside the
	// provided memory.
	ErrOutOfRange = errors.New("atomic64: placement out of range")
	// ErrMisaligned reports a placement whose address is not 8-byte
	// aligned. Mapped regions are page aligned, so an aligned offset into a
	// mapping always yields an aligned address.
	ErrMisaligned = errors.New("atomic64: placement not 8-byte aligned")
)

// At reinterprets PlacedSize bytes of mem starting at off as a Uint64.
//
// The returned word aliases mem: it stays valid exactly as long as the
// backing memory (typically a shared mapping) stays mapped, and every
// process that places a word at the same offset of the same region talks to
// the same logical atomic. At performs no allocation and takes no locks.
//
// Exactly one process must Init the word before any process operates on it;
// At itself never writes.
func At(mem []byte, off int) (*Uint64, error) {
	// Written without off+PlacedSize, which overflows for offsets near
	// MaxInt and would turn the range error into an index panic.
	if off < 0 || off > len(mem)-PlacedSize {
		return nil, fmt.Errorf("%w: offset %d with %d bytes available", ErrOutOfRange, off, len(mem))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%8 != 0 {
		return nil, fmt.Errorf("%w: offset %d maps to address %#x", ErrMisaligned, off, uintptr(p))
	}
	return (*Uint64)(p), nil
}
