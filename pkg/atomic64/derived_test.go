package atomic64

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadStoreExchange(t *testing.T) {
	var w Uint64
	w.Init(7)

	assert.Equal(t, uint64(7), w.Load())
	w.Store(11)
	assert.Equal(t, uint64(11), w.Load())
	assert.Equal(t, uint64(11), w.Exchange(13))
	assert.Equal(t, uint64(13), w.Load())
}

func TestFetchSubAndFetchVariants(t *testing.T) {
	var w Uint64
	w.Init(50)

	assert.Equal(t, uint64(50), w.FetchSub(20))
	assert.Equal(t, uint64(30), w.Load())

	assert.Equal(t, uint64(33), w.AddFetch(3))
	assert.Equal(t, uint64(33), w.Load())

	assert.Equal(t, uint64(30), w.SubFetch(3))
	assert.Equal(t, uint64(30), w.Load())

	w.Init(1)
	assert.Equal(t, uint64(math.MaxUint64), w.SubFetch(2), "underflow wraps")
}

func TestFetchAndFetchOr(t *testing.T) {
	var w Uint64
	w.Init(0b1111_0000)

	assert.Equal(t, uint64(0b1111_0000), w.FetchAnd(0b1010_1010))
	assert.Equal(t, uint64(0b1010_0000), w.Load())

	assert.Equal(t, uint64(0b1010_0000), w.FetchOr(0b0000_0101))
	assert.Equal(t, uint64(0b1010_0101), w.Load())
}

func TestDerivedOpsShareTheWordOrder(t *testing.T) {
	// Mixed Store/FetchOr traffic on one word must never tear: with each
	// writer storing a full-width pattern, every load observes one of the
	// written patterns, never a blend.
	patterns := []uint64{0, math.MaxUint64, 0xAAAA_AAAA_AAAA_AAAA, 0x5555_5555_5555_5555}
	var w Uint64
	w.Init(0)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(patterns))
	for _, p := range patterns {
		p := p
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					w.Store(p)
				}
			}
		}()
	}

	valid := map[uint64]bool{0: true}
	for _, p := range patterns {
		valid[p] = true
	}
	for i := 0; i < 20000; i++ {
		assert.True(t, valid[w.Load()], "torn read on iteration %d", i)
	}
	close(done)
	wg.Wait()
}
