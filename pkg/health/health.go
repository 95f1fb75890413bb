//go:build unix

// Package health exposes the module's moving parts through a healthcheck
// handler: the barrier target is probed for liveness, regions gate
// readiness on publication and a surviving backing file, and an optional
// goroutine ceiling catches runaway concurrency. The handler serves /live
// and /ready and plugs into any http mux.
package health

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srediag/shm-atomics/internal/shm"
	"github.com/srediag/shm-atomics/pkg/barrier"
	"github.com/srediag/shm-atomics/pkg/region"
)

// Config selects the checks the handler carries. Zero fields leave their
// check out.
type Config struct {
	// Target is the barrier probe target whose liveness the handler
	// reports. A dead target means memory barriers still fence (the probe
	// side effect never resolves the pid) but the deployment lost the
	// process it was pinned to. The zero Target disables the check.
	Target barrier.Target

	// Region, when set, gates readiness on the region being published.
	Region *region.Region

	// MaxGoroutines fails liveness once the process carries more
	// goroutines than this. Zero disables the check.
	MaxGoroutines int

	// Registry, when set, additionally records every check outcome as a
	// gauge under the shmatomics namespace.
	Registry prometheus.Registerer
}

// DefaultConfig watches the calling process itself.
func DefaultConfig() *Config {
	return &Config{
		Target: barrier.OwnProcess(),
	}
}

// NewHandler builds the handler for config. A nil config uses
// DefaultConfig.
func NewHandler(config *Config) healthcheck.Handler {
	if config == nil {
		config = DefaultConfig()
	}
	var handler healthcheck.Handler
	if config.Registry != nil {
		handler = healthcheck.NewMetricsHandler(config.Registry, "shmatomics")
	} else {
		handler = healthcheck.NewHandler()
	}
	if pid := config.Target.Pid(); pid != 0 {
		handler.AddLivenessCheck("barrier-target-alive", PidCheck(pid))
	}
	if config.MaxGoroutines > 0 {
		handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(config.MaxGoroutines))
	}
	if config.Region != nil {
		handler.AddReadinessCheck("region-published", RegionPublishedCheck(config.Region))
		handler.AddReadinessCheck("region-backing", RegionBackingCheck(config.Region))
	}
	return handler
}

// PidCheck reports an error while pid does not name a live process.
func PidCheck(pid int) healthcheck.Check {
	return func() error {
		alive, err := process.PidExists(int32(pid))
		if err != nil {
			return fmt.Errorf("probing pid %d: %w", pid, err)
		}
		if !alive {
			return fmt.Errorf("pid %d is gone", pid)
		}
		return nil
	}
}

// RegionPublishedCheck reports an error until r is published.
func RegionPublishedCheck(r *region.Region) healthcheck.Check {
	return func() error {
		if !r.Published() {
			return region.ErrNotPublished
		}
		return nil
	}
}

// RegionBackingCheck reports an error while a path-backed region's backing
// file is missing. The mapped pages outlive the file, so a region keeps
// serving after a stray unlink; late attachers then have nothing to open.
func RegionBackingCheck(r *region.Region) healthcheck.Check {
	return func() error {
		if r.Fd() >= 0 {
			// memfd regions have no path to lose.
			return nil
		}
		if !shm.PathExists(r.Path()) {
			return fmt.Errorf("backing file %s is gone", r.Path())
		}
		return nil
	}
}
