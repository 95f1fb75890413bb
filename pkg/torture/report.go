package torture

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrContractViolated is wrapped by Verify when a run observed behavior
// the atomic contract forbids.
var ErrContractViolated = errors.New("atomic contract violated")

// Report is the outcome of one conformance run.
type Report struct {
	// Workers and Ops are the run shape: Ops is the total operation count
	// across all workers.
	Workers int
	Ops     int

	// Retries counts failed compare-exchange attempts. Always zero for
	// fetch-add runs.
	Retries uint64

	// Initial and Final are the word's value before and after the run.
	Initial uint64
	Final   uint64

	// Elapsed is the wall time the workers spent.
	Elapsed time.Duration

	// Violations describes every contract breach the checks found. An
	// empty list is a clean run.
	Violations []string
}

// Verify returns nil for a clean run and an error wrapping
// ErrContractViolated otherwise.
func (r *Report) Verify() error {
	if len(r.Violations) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrContractViolated, strings.Join(r.Violations, "; "))
}

// Throughput returns operations per second over the run.
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

func (r *Report) String() string {
	status := "ok"
	if len(r.Violations) > 0 {
		status = fmt.Sprintf("%d violations", len(r.Violations))
	}
	return fmt.Sprintf("%d workers, %d ops in %s (%.0f op/s), %d retries, %d -> %d: %s",
		r.Workers, r.Ops, r.Elapsed.Round(time.Millisecond), r.Throughput(),
		r.Retries, r.Initial, r.Final, status)
}

func (r *Report) violationf(format string, a ...interface{}) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, a...))
}
