//go:build unix

package barrier

// CompilerBarrier prevents the optimizer from reordering or eliding memory
// accesses across this program point. The body is empty on purpose: the
// whole effect is that the call is a boundary the compiler cannot see
// through, so it must assume arbitrary global memory was read and written.
// There is no hardware ordering effect; for one of those, use a Target's
// MemoryBarrier.
//
// The noinline directive is load-bearing; inlining would dissolve the
// boundary and with it the barrier.
//
//go:noinline
func CompilerBarrier() {}
