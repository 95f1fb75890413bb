//go:build unix

package barrier

import (
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ErrNoSuchProcess reports that the pid handed to FindProcess was not alive
// at construction time.
var ErrNoSuchProcess = errors.New("barrier: no such process")

// Target names the process whose existence the fallback probe queries. It
// is a plain value: copy it freely, embed it in configuration, pass it
// across goroutines.
//
// The zero Target probes the caller's own process group (pid 0), which is a
// valid kernel probe; the constructors exist to pin the probe to one
// specific long-lived process instead.
type Target struct {
	pid int32
}

// OwnProcess returns a Target probing the calling process itself. The
// calling process trivially exists, so the probe can never outlive its
// target.
func OwnProcess() Target {
	return Target{pid: int32(os.Getpid())}
}

// ParentProcess returns a Target probing the caller's parent: in a
// supervised deployment, the long-lived supervisor that outlives its
// workers.
func ParentProcess() Target {
	return Target{pid: int32(os.Getppid())}
}

// FindProcess returns a Target probing pid, verifying once, at
// construction time, that the process is alive. The barrier itself never
// re-validates: a target that later dies makes the probe report an error
// the barrier ignores, and the fence side effect is unaffected.
func FindProcess(pid int) (Target, error) {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return Target{}, fmt.Errorf("barrier: probing pid %d: %w", pid, err)
	}
	if !alive {
		return Target{}, fmt.Errorf("%w: pid %d", ErrNoSuchProcess, pid)
	}
	return Target{pid: int32(pid)}, nil
}

// Pid returns the pid the probe is aimed at.
func (t Target) Pid() int {
	return int(t.pid)
}

// MemoryBarrier forces a full, sequentially consistent memory fence by
// asking the kernel whether the target process exists. The probe's outcome
// (success, ESRCH, EPERM) is deliberately discarded; only the fence on the
// kernel's lookup path matters.
//
// MemoryBarrier must stay reentrant: barriers are placed in signal
// handlers, so an invocation can be interrupted and re-entered at any
// point. It therefore touches no shared state, takes no locks (in
// particular, never an atomic word's guard) and performs no allocation.
func (t Target) MemoryBarrier() {
	_ = unix.Kill(int(t.pid), 0)
}
