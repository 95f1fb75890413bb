//go:build unix

/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package region

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shm-atomics/internal/logging"
	"github.com/srediag/shm-atomics/internal/shm"
	"github.com/srediag/shm-atomics/pkg/atomic64"
)

const (
	headerLength = 64

	magicOffset       = 0
	versionOffset     = 4
	payloadSizeOffset = 8
	stateOffset       = 16

	regionMagic   uint32 = 0x53484d41 // "SHMA"
	regionVersion uint32 = 1

	stateInitializing uint64 = 0
	statePublished    uint64 = 1
)

// The state word has to fit inside the header, land on an 8 byte boundary,
// and the header itself has to keep the payload 16 byte aligned.
var (
	_ [headerLength - stateOffset - atomic64.PlacedSize]byte

	_ [0]byte = [stateOffset % 8]byte{}
	_ [0]byte = [headerLength % 16]byte{}
)

var (
	ErrBadMagic         = errors.New("shared region magic mismatch")
	ErrVersionMismatch  = errors.New("shared region version mismatch")
	ErrNotPublished     = errors.New("shared region is not published yet")
	ErrAlreadyPublished = errors.New("shared region was already published")
	ErrTooSmall         = errors.New("mapping is smaller than the region header")
	ErrSizeMismatch     = errors.New("header payload size exceeds the mapping")
)

var internalLogger = logging.New("region", nil)

// Region is a mapped shared memory segment with a 64 byte header followed
// by a caller-owned payload. The header carries a magic, a format version,
// the payload size and a publication state word.
type Region struct {
	mapping    *shm.Mapping
	state      *atomic64.Uint64
	payloadLen int
	owner      bool
	ins        *instruments
	tracer     trace.Tracer
}

// Create creates the backing file at path, maps it and writes a fresh
// header. The region starts unpublished: attachers block until the caller
// has initialized the payload and called Publish.
func Create(ctx context.Context, path string, config *Config) (*Region, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	ctx, span := config.tracer().Start(ctx, "region.Create")
	defer span.End()

	mapping, err := shm.Create(path, mappingSize(config.PayloadSize))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	r := newRegion(mapping, config, config.PayloadSize, true)
	r.initHeader()
	createdTotal.Add(1)
	r.ins.created.Add(ctx, 1)
	internalLogger.Infof("region created path:%s payload:%d mapping:%d", path, r.payloadLen, len(mapping.Data))
	if logging.DebugMode() {
		DebugRegionInfo(path)
	}
	return r, nil
}

// CreateWithMemfd creates an anonymous memfd-backed region. The name is a
// debugging label; peers attach with AttachMemfd after receiving Fd() out
// of band.
func CreateWithMemfd(ctx context.Context, name string, config *Config) (*Region, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	ctx, span := config.tracer().Start(ctx, "region.CreateWithMemfd")
	defer span.End()

	mapping, err := shm.CreateMemfd(name, mappingSize(config.PayloadSize))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	r := newRegion(mapping, config, config.PayloadSize, true)
	r.initHeader()
	createdTotal.Add(1)
	r.ins.created.Add(ctx, 1)
	internalLogger.Infof("region created name:%s fd:%d payload:%d", name, mapping.Fd(), r.payloadLen)
	return r, nil
}

// Attach maps the region backing file at path. It retries with backoff
// while the file is missing or the region is still unpublished, up to
// config.AttachTimeout or ctx cancellation. Foreign or incompatible files
// fail immediately.
func Attach(ctx context.Context, path string, config *Config) (*Region, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	ctx, span := config.tracer().Start(ctx, "region.Attach")
	defer span.End()

	var r *Region
	op := func() error {
		mapping, err := shm.Open(path)
		if err != nil {
			attachRetriesTotal.Add(1)
			return err
		}
		reg, merr := mapRegion(mapping, config)
		if merr != nil {
			_ = mapping.Close()
			if errors.Is(merr, ErrNotPublished) {
				attachRetriesTotal.Add(1)
				return merr
			}
			return backoff.Permanent(merr)
		}
		r = reg
		return nil
	}
	if err := backoff.Retry(op, attachBackOff(ctx, config)); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("attach region path:%s, %w", path, err)
	}
	attachedTotal.Add(1)
	r.ins.attached.Add(ctx, 1)
	internalLogger.Infof("region attached path:%s payload:%d", path, r.payloadLen)
	return r, nil
}

// AttachMemfd maps a memfd-backed region from a received descriptor. Like
// Attach it waits for publication with backoff.
func AttachMemfd(ctx context.Context, name string, memFd int, config *Config) (*Region, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	ctx, span := config.tracer().Start(ctx, "region.AttachMemfd")
	defer span.End()

	mapping, err := shm.OpenMemfd(name, memFd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var r *Region
	op := func() error {
		reg, merr := mapRegion(mapping, config)
		if merr != nil {
			if errors.Is(merr, ErrNotPublished) {
				attachRetriesTotal.Add(1)
				return merr
			}
			return backoff.Permanent(merr)
		}
		r = reg
		return nil
	}
	if err := backoff.Retry(op, attachBackOff(ctx, config)); err != nil {
		_ = mapping.Close()
		span.RecordError(err)
		return nil, fmt.Errorf("attach region name:%s, %w", name, err)
	}
	attachedTotal.Add(1)
	r.ins.attached.Add(ctx, 1)
	internalLogger.Infof("region attached name:%s fd:%d payload:%d", name, memFd, r.payloadLen)
	return r, nil
}

func newRegion(mapping *shm.Mapping, config *Config, payloadLen int, owner bool) *Region {
	return &Region{
		mapping:    mapping,
		state:      (*atomic64.Uint64)(unsafe.Pointer(&mapping.Data[stateOffset])),
		payloadLen: payloadLen,
		owner:      owner,
		ins:        newInstruments(config.meter()),
		tracer:     config.tracer(),
	}
}

func (r *Region) initHeader() {
	data := r.mapping.Data
	*(*uint32)(unsafe.Pointer(&data[versionOffset])) = regionVersion
	*(*uint64)(unsafe.Pointer(&data[payloadSizeOffset])) = uint64(r.payloadLen)
	r.state.Init(stateInitializing)
	// The magic goes in last: a nonzero magic tells attachers the state
	// word's guard is initialized and safe to take.
	*(*uint32)(unsafe.Pointer(&data[magicOffset])) = regionMagic
}

// mapRegion validates the header of an already mapped segment. The state
// word is only taken once the magic checks out, so a foreign file can
// never wedge an attacher on a garbage guard.
func mapRegion(mapping *shm.Mapping, config *Config) (*Region, error) {
	data := mapping.Data
	if len(data) < headerLength {
		return nil, ErrTooSmall
	}
	magic := *(*uint32)(unsafe.Pointer(&data[magicOffset]))
	if magic == 0 {
		// The creator zeroes the segment and stamps the magic last, so a
		// zero magic is a region still being set up, not a foreign file.
		return nil, ErrNotPublished
	}
	if magic != regionMagic {
		return nil, fmt.Errorf("magic %#x: %w", magic, ErrBadMagic)
	}
	state := (*atomic64.Uint64)(unsafe.Pointer(&data[stateOffset]))
	if state.Load() != statePublished {
		return nil, ErrNotPublished
	}
	// Publication synchronizes: everything the creator wrote before
	// Publish is visible from here on.
	if version := *(*uint32)(unsafe.Pointer(&data[versionOffset])); version != regionVersion {
		return nil, fmt.Errorf("version %d, want %d: %w", version, regionVersion, ErrVersionMismatch)
	}
	payloadLen := int(*(*uint64)(unsafe.Pointer(&data[payloadSizeOffset])))
	if payloadLen <= 0 || headerLength+payloadLen > len(data) {
		return nil, fmt.Errorf("payload size %d, mapping %d: %w", payloadLen, len(data), ErrSizeMismatch)
	}
	return newRegion(mapping, config, payloadLen, false), nil
}

func attachBackOff(ctx context.Context, config *Config) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Millisecond
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2
	bo.MaxInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = config.AttachTimeout
	bo.Reset()
	return backoff.WithContext(bo, ctx)
}

// Publish flips the region into its published state. Exactly one publish
// succeeds; attachers block until it happens. The caller must have
// initialized every atomic word it placed before publishing.
func (r *Region) Publish() error {
	expected := stateInitializing
	if !r.state.CompareExchange(&expected, statePublished) {
		return fmt.Errorf("state %d: %w", expected, ErrAlreadyPublished)
	}
	publishedTotal.Add(1)
	r.ins.published.Add(context.Background(), 1)
	internalLogger.Infof("region published path:%s", r.mapping.Path)
	return nil
}

// Published reports whether the region has been published.
func (r *Region) Published() bool {
	return r.state.Load() == statePublished
}

// Payload returns the caller-owned bytes behind the header. The slice
// aliases the shared mapping.
func (r *Region) Payload() []byte {
	return r.mapping.Data[headerLength : headerLength+r.payloadLen]
}

// PlaceUint64 interprets atomic64.PlacedSize bytes of the payload at off
// as an atomic word. The creator initializes the word once; attachers
// place the same offset and use it directly.
func (r *Region) PlaceUint64(off int) (*atomic64.Uint64, error) {
	return atomic64.At(r.Payload(), off)
}

// Size returns the payload size in bytes.
func (r *Region) Size() int {
	return r.payloadLen
}

// Path returns the backing file path, or the memfd label.
func (r *Region) Path() string {
	return r.mapping.Path
}

// Fd returns the memfd descriptor for memfd-backed regions, -1 otherwise.
func (r *Region) Fd() int {
	return r.mapping.Fd()
}

// Close unmaps the region and, when this process created it, removes the
// backing file. On an attached region Close degrades to Detach: only the
// creator may unlink the segment under its other users.
func (r *Region) Close() error {
	if r == nil || r.mapping == nil || r.mapping.Data == nil {
		return nil
	}
	if !r.owner {
		return r.Detach()
	}
	err := r.mapping.Close()
	if uerr := r.mapping.Unlink(); err == nil {
		err = uerr
	}
	closedTotal.Add(1)
	r.ins.closed.Add(context.Background(), 1)
	return err
}

// Detach unmaps the region and leaves the backing segment for its other
// users.
func (r *Region) Detach() error {
	if r == nil || r.mapping == nil || r.mapping.Data == nil {
		return nil
	}
	err := r.mapping.Close()
	detachedTotal.Add(1)
	r.ins.detached.Add(context.Background(), 1)
	return err
}

func mappingSize(payloadLen int) int {
	// The total mapped size must stay a multiple of 16 for ARM.
	return headerLength + alignUp(payloadLen, 16)
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
