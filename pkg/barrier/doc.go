//go:build unix

// Package barrier provides fallback memory and compiler barriers for
// platforms or toolchains that cannot emit the real instructions.
//
// The memory barrier works by issuing a minimal, side-effect-bearing kernel
// probe ("does this process exist") against a stable, long-lived target
// process. Kernels old enough to need the fallback include a full fence on
// the pid-lookup path, and that fence is the entire point: the probe's
// result is discarded. The probing function touches no shared state, takes
// no locks and performs no allocation, so it is safe to call from
// signal-handling context and to re-enter at any depth.
//
// The compiler barrier is the degenerate counterpart: an empty function the
// optimizer is forbidden to inline, so memory accesses cannot be reordered
// or elided across the call. It has no runtime ordering effect at all.
//
// Neither function decides when a fallback is warranted; selecting between
// native instructions and this package is the caller's build-time concern.
// The package is not buildable on Windows, where real barriers are always
// available and the fallback must never be selected.
package barrier
