// Package torture drives an emulated atomic word through concurrent
// conformance scenarios and checks the outcome against the atomic
// contract: the sum is conserved exactly, no observation is lost or
// duplicated, and compare-exchange retry loops terminate.
//
// A fetch-add run asserts that the final value equals the initial value
// plus the sum of all deltas, and that the observed previous values are
// exactly the arithmetic progression of partial sums in some order; a
// duplicated previous value would mean two operations read the same state,
// which is a lost update. A compare-exchange run asserts the same
// conservation through the standard retry loop, which only terminates
// because a failed swap reliably hands back the genuine current value.
//
// Tests use the runners directly; the examples run them as a smoke check
// against words placed in shared regions.
package torture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/shm-atomics/pkg/atomic64"
)

// Config holds the shape of one conformance run.
type Config struct {
	// Workers is the number of concurrent workers hammering the word.
	Workers int

	// OpsPerWorker is the number of operations each worker performs.
	OpsPerWorker int

	// Delta is the signed step applied per operation. It must not be zero:
	// a zero step makes every observation identical and the permutation
	// check meaningless.
	Delta int64

	// Pool optionally reuses a caller-owned worker pool across runs. A nil
	// Pool makes the run create its own, sized to Workers, and release it
	// when the run ends.
	Pool *ants.Pool
}

// DefaultConfig returns the default run shape.
func DefaultConfig() *Config {
	return &Config{
		Workers:      8,
		OpsPerWorker: 10000,
		Delta:        1,
	}
}

// VerifyConfig checks whether the config is legal.
func VerifyConfig(config *Config) error {
	if config.Workers <= 0 {
		return fmt.Errorf("workers %d, must be positive", config.Workers)
	}
	if config.OpsPerWorker <= 0 {
		return fmt.Errorf("ops per worker %d, must be positive", config.OpsPerWorker)
	}
	if config.Delta == 0 {
		return fmt.Errorf("delta must not be zero")
	}
	return nil
}

// RunFetchAdd hammers word with Workers x OpsPerWorker FetchAdd calls and
// checks conservation and the partial-sum permutation over the observed
// previous values. The caller must have initialized word; its value when
// the run starts is the baseline.
func RunFetchAdd(word *atomic64.Uint64, config *Config) (*Report, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	pool, owned, err := workerPool(config)
	if err != nil {
		return nil, err
	}
	if owned {
		defer pool.Release()
	}

	total := config.Workers * config.OpsPerWorker
	observed := queue.New(int64(total))
	initial := word.Load()

	var wg sync.WaitGroup
	start := time.Now()
	var submitErr error
	for w := 0; w < config.Workers && submitErr == nil; w++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			for i := 0; i < config.OpsPerWorker; i++ {
				prev := word.FetchAdd(config.Delta)
				if err := observed.Put(prev); err != nil {
					// Disposed queue: the run was abandoned.
					return
				}
			}
		})
		if err != nil {
			wg.Done()
			submitErr = fmt.Errorf("submit fetch-add worker: %w", err)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)
	if submitErr != nil {
		observed.Dispose()
		return nil, submitErr
	}

	values, err := drain(observed, total)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Workers: config.Workers,
		Ops:     total,
		Initial: initial,
		Final:   word.Load(),
		Elapsed: elapsed,
	}
	checkFinal(report, initial, config.Delta, total)
	checkObservations(report, initial, config.Delta, values)
	return report, nil
}

// RunCompareExchange has Workers x OpsPerWorker increments applied through
// the standard compare-exchange retry loop and checks the same properties
// as RunFetchAdd. Every retry is counted; the loop terminating at all is
// the strong-CAS guarantee at work, since a failed swap refreshes the
// expectation with the value actually seen.
func RunCompareExchange(word *atomic64.Uint64, config *Config) (*Report, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	pool, owned, err := workerPool(config)
	if err != nil {
		return nil, err
	}
	if owned {
		defer pool.Release()
	}

	total := config.Workers * config.OpsPerWorker
	observed := queue.New(int64(total))
	initial := word.Load()

	var (
		wg      sync.WaitGroup
		retries atomic.Uint64
	)
	start := time.Now()
	var submitErr error
	for w := 0; w < config.Workers && submitErr == nil; w++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			var failed uint64
			for i := 0; i < config.OpsPerWorker; i++ {
				expected := word.Load()
				for !word.CompareExchange(&expected, expected+uint64(config.Delta)) {
					// A failed strong swap leaves the observed value in
					// expected; the next attempt works from it directly.
					failed++
				}
				// On success expected still holds the pre-swap value: the
				// partial sum this operation claimed.
				if err := observed.Put(expected); err != nil {
					return
				}
			}
			// Fold the local tally in once, off the hot loop.
			retries.Add(failed)
		})
		if err != nil {
			wg.Done()
			submitErr = fmt.Errorf("submit compare-exchange worker: %w", err)
		}
	}
	wg.Wait()
	elapsed := time.Since(start)
	if submitErr != nil {
		observed.Dispose()
		return nil, submitErr
	}

	values, err := drain(observed, total)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Workers: config.Workers,
		Ops:     total,
		Retries: retries.Load(),
		Initial: initial,
		Final:   word.Load(),
		Elapsed: elapsed,
	}
	checkFinal(report, initial, config.Delta, total)
	checkObservations(report, initial, config.Delta, values)
	return report, nil
}

func workerPool(config *Config) (pool *ants.Pool, owned bool, err error) {
	if config.Pool != nil {
		return config.Pool, false, nil
	}
	pool, err = ants.NewPool(config.Workers)
	if err != nil {
		return nil, false, fmt.Errorf("create worker pool: %w", err)
	}
	return pool, true, nil
}

// drain empties the observation queue into a slice. All producers are done
// by the time drain runs, so Get never blocks for long.
func drain(observed *queue.Queue, total int) ([]uint64, error) {
	values := make([]uint64, 0, total)
	for len(values) < total {
		items, err := observed.Get(int64(total - len(values)))
		if err != nil {
			return nil, fmt.Errorf("drain observations: %w", err)
		}
		for _, item := range items {
			values = append(values, item.(uint64))
		}
	}
	observed.Dispose()
	return values, nil
}

// checkFinal verifies exact conservation: the final value must equal the
// initial value plus ops deltas, with two's-complement wraparound.
func checkFinal(report *Report, initial uint64, delta int64, ops int) {
	want := initial + uint64(delta)*uint64(ops)
	if report.Final != want {
		report.violationf("final value %d, want %d: updates were lost", report.Final, want)
	}
}

// checkObservations verifies that the observed previous values are exactly
// the multiset of partial sums initial + k*delta for k in [0, ops). The
// multiset view makes the check interleaving-independent: any serial order
// of the operations produces the same collection, and it stays exact even
// when wraparound makes distinct k collide on one sum.
func checkObservations(report *Report, initial uint64, delta int64, values []uint64) {
	seen := make(map[uint64]int, len(values))
	for _, v := range values {
		seen[v]++
	}

	var missing, duplicated int
	for k := 0; k < len(values); k++ {
		sum := initial + uint64(delta)*uint64(k)
		if seen[sum] > 0 {
			seen[sum]--
		} else {
			missing++
		}
	}
	for _, extra := range seen {
		duplicated += extra
	}
	if missing > 0 {
		report.violationf("%d of %d partial sums never observed", missing, len(values))
	}
	if duplicated > 0 {
		report.violationf("%d partial sums observed more than once: duplicated previous values", duplicated)
	}
}
