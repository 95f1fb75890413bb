//go:build unix

// Package counters maintains a pool of named shared counters inside a
// region payload. Any process mapping the region can look a counter up by
// name and bump it; the slot claim protocol makes concurrent lookups of
// the same name from different processes converge on the same slot.
package counters

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/shm-atomics/pkg/atomic64"
	"github.com/srediag/shm-atomics/pkg/region"
)

const (
	// SlotSize is the byte footprint of one counter slot. Size pool
	// regions as a multiple of it.
	SlotSize = 128

	claimOffset   = 0
	valueOffset   = 16
	nameLenOffset = 32
	nameOffset    = 36

	// MaxNameLen is the longest counter name a slot can hold.
	MaxNameLen = SlotSize - nameOffset
)

// Claim word states. A slot moves Free -> Claiming -> Named exactly once;
// there is no release.
const (
	slotFree     uint64 = 0
	slotClaiming uint64 = 1
	slotNamed    uint64 = 2
)

// Both words have to land on 8 byte boundaries of a 16 byte aligned slot.
var (
	_ [0]byte = [claimOffset % 8]byte{}
	_ [0]byte = [valueOffset % 8]byte{}
	_ [0]byte = [SlotSize % 16]byte{}
)

var (
	ErrPoolFull       = errors.New("counter pool has no free slot")
	ErrNameTooLong    = errors.New("counter name exceeds the slot capacity")
	ErrEmptyName      = errors.New("counter name is empty")
	ErrRegionTooSmall = errors.New("region payload holds no counter slot")
)

// Pool is a fixed-size table of counter slots carved out of a region
// payload. The name to slot mapping is cached per process.
type Pool struct {
	mem   []byte
	slots int
	cache cmap.ConcurrentMap[string, int]
}

// NewPool lays a fresh pool over the region payload and initializes every
// slot. The caller creates the region, builds the pool, and only then
// publishes; attachers use AttachPool.
func NewPool(r *region.Region) (*Pool, error) {
	p, err := poolOver(r)
	if err != nil {
		return nil, err
	}
	for idx := 0; idx < p.slots; idx++ {
		p.claimAt(idx).Init(slotFree)
	}
	return p, nil
}

// AttachPool lays a pool over an already initialized region payload.
func AttachPool(r *region.Region) (*Pool, error) {
	return poolOver(r)
}

func poolOver(r *region.Region) (*Pool, error) {
	mem := r.Payload()
	slots := len(mem) / SlotSize
	if slots == 0 {
		return nil, fmt.Errorf("payload %d bytes, slot %d: %w", len(mem), SlotSize, ErrRegionTooSmall)
	}
	return &Pool{
		mem:   mem,
		slots: slots,
		cache: cmap.New[int](),
	}, nil
}

// Counter returns the counter registered under name, claiming a free slot
// for it if no process has registered the name yet. Concurrent callers
// with the same name all end up on the same slot.
func (p *Pool) Counter(name string) (*Counter, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("name %q is %d bytes, limit %d: %w", name, len(name), MaxNameLen, ErrNameTooLong)
	}
	if idx, ok := p.cache.Get(name); ok {
		return p.counterAt(idx, name), nil
	}
	for idx := 0; idx < p.slots; idx++ {
		claim := p.claimAt(idx)
		for {
			expected := slotFree
			if claim.CompareExchange(&expected, slotClaiming) {
				// The slot is ours alone until the claim word says Named.
				p.valueAt(idx).Init(0)
				p.writeName(idx, name)
				claim.Store(slotNamed)
				p.cache.Set(name, idx)
				return p.counterAt(idx, name), nil
			}
			// A failed exchange reports the state it observed.
			if expected == slotNamed {
				if p.nameAt(idx) == name {
					p.cache.Set(name, idx)
					return p.counterAt(idx, name), nil
				}
				break
			}
			// Mid-claim in another process; the name lands shortly.
			runtime.Gosched()
		}
	}
	return nil, fmt.Errorf("pool of %d slots: %w", p.slots, ErrPoolFull)
}

// Len counts the named slots.
func (p *Pool) Len() int {
	n := 0
	for idx := 0; idx < p.slots; idx++ {
		if p.claimAt(idx).Load() == slotNamed {
			n++
		}
	}
	return n
}

// Cap returns the total slot count.
func (p *Pool) Cap() int {
	return p.slots
}

// Snapshot returns the current value of every named counter. Slots being
// claimed while the snapshot runs are left out.
func (p *Pool) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, p.slots)
	for idx := 0; idx < p.slots; idx++ {
		if p.claimAt(idx).Load() != slotNamed {
			continue
		}
		out[p.nameAt(idx)] = p.valueAt(idx).Load()
	}
	return out
}

func (p *Pool) counterAt(idx int, name string) *Counter {
	return &Counter{name: name, word: p.valueAt(idx)}
}

func (p *Pool) claimAt(idx int) *atomic64.Uint64 {
	w, _ := atomic64.At(p.mem, idx*SlotSize+claimOffset)
	return w
}

func (p *Pool) valueAt(idx int) *atomic64.Uint64 {
	w, _ := atomic64.At(p.mem, idx*SlotSize+valueOffset)
	return w
}

func (p *Pool) writeName(idx int, name string) {
	base := idx * SlotSize
	copy(p.mem[base+nameOffset:base+nameOffset+MaxNameLen], name)
	*(*uint32)(unsafe.Pointer(&p.mem[base+nameLenOffset])) = uint32(len(name))
}

func (p *Pool) nameAt(idx int) string {
	base := idx * SlotSize
	nameLen := int(*(*uint32)(unsafe.Pointer(&p.mem[base+nameLenOffset])))
	if nameLen > MaxNameLen {
		nameLen = MaxNameLen
	}
	return string(p.mem[base+nameOffset : base+nameOffset+nameLen])
}
