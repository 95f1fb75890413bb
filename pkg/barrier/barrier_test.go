//go:build unix

package barrier

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srediag/shm-atomics/pkg/atomic64"
)

func TestTargetConstructors(t *testing.T) {
	assert.Equal(t, os.Getpid(), OwnProcess().Pid())
	assert.Equal(t, os.Getppid(), ParentProcess().Pid())

	tgt, err := FindProcess(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), tgt.Pid())
}

func TestFindProcessRejectsDeadPid(t *testing.T) {
	// Far beyond any default pid_max; if this pid is alive the box has
	// bigger problems than a failing test.
	_, err := FindProcess(1 << 30)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestMemoryBarrierIgnoresProbeOutcome(t *testing.T) {
	// A live probe, a pid no process can have, pid 1 (EPERM for unprivileged
	// callers) and the zero value. The probe outcome must never surface.
	targets := []Target{OwnProcess(), {pid: 1 << 30}, {pid: 1}, {}}
	for _, tgt := range targets {
		for i := 0; i < 100; i++ {
			tgt.MemoryBarrier()
		}
	}
}

func TestMemoryBarrierDoesNotAllocate(t *testing.T) {
	tgt := OwnProcess()
	allocs := testing.AllocsPerRun(1000, func() {
		tgt.MemoryBarrier()
	})
	assert.Zero(t, allocs, "the barrier path must stay allocation free for signal-context safety")
}

func TestMemoryBarrierReentrantFromSignalHandler(t *testing.T) {
	tgt := OwnProcess()

	sigc := make(chan os.Signal, 16)
	signal.Notify(sigc, unix.SIGUSR1)
	defer signal.Stop(sigc)

	var (
		fired atomic.Int64
		done  = make(chan struct{})
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-sigc:
				// Nested invocations while the main loop is mid-barrier.
				tgt.MemoryBarrier()
				tgt.MemoryBarrier()
				fired.Add(1)
			case <-done:
				return
			}
		}
	}()

	// An atomic word hammered while barriers fire from both the main flow
	// and the interrupt path: the barrier must not perturb it.
	var w atomic64.Uint64
	w.Init(0)
	const rounds = 2000
	for i := 0; i < rounds; i++ {
		w.FetchAdd(1)
		tgt.MemoryBarrier()
		if i%100 == 0 {
			require.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))
		}
	}

	// Give the last signal a moment to drain before stopping the handler.
	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()

	assert.Equal(t, uint64(rounds), w.Load())
	assert.Positive(t, fired.Load(), "no signal-context barrier ever ran")
}

func TestCompilerBarrierHasNoObservableEffect(t *testing.T) {
	x := 1
	for i := 0; i < 1000; i++ {
		CompilerBarrier()
		CompilerBarrier()
	}
	assert.Equal(t, 1, x)

	allocs := testing.AllocsPerRun(1000, CompilerBarrier)
	assert.Zero(t, allocs)
}

func BenchmarkMemoryBarrier(b *testing.B) {
	tgt := OwnProcess()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tgt.MemoryBarrier()
	}
}

func BenchmarkCompilerBarrier(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		CompilerBarrier()
	}
}
