// Package atomic64 emulates atomic operations on a 64-bit word for
// platforms, toolchains, or memory placements where native 64-bit
// read-modify-write instructions cannot be used, typically words living in
// memory shared between independently built processes, where a stable
// binary layout matters more than lock freedom.
//
// A Uint64 couples the value with a one-word guard lock. Every operation
// runs its whole O(1) body inside the guard, so all operations on one word
// are totally ordered; there is no ordering relationship between different
// words. Operations may block while another caller holds the guard, so this
// package trades wait freedom for portability; callers that have real
// hardware atomics available should use sync/atomic instead. Which of the
// two a program picks is its own build-time decision; nothing here probes
// the platform.
//
// Words can live anywhere ordinary Go values live, or be placed at a fixed
// offset of a shared memory region with At:
//
//	w, err := atomic64.At(region.Payload(), 0)
//	if err != nil {
//	    return err
//	}
//	w.Init(42)
//	prev := w.FetchAdd(8)
//
// The placed layout (guard at offset 0, value at offset 8, 16 bytes total)
// is identical on 32- and 64-bit builds and is enforced at compile time; a
// layout drift breaks the build, never a running process.
package atomic64
