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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/shm-atomics/pkg/atomic64"
)

func TestCreateAttachRoundtrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPayloadSize, owner.Size())
	assert.Equal(t, path, owner.Path())
	assert.Equal(t, -1, owner.Fd())
	assert.False(t, owner.Published())

	w, err := owner.PlaceUint64(0)
	require.NoError(t, err)
	w.Init(7)
	w2, err := owner.PlaceUint64(atomic64.PlacedSize)
	require.NoError(t, err)
	w2.Init(100)

	require.NoError(t, owner.Publish())
	assert.True(t, owner.Published())

	peer, err := Attach(ctx, path, nil)
	require.NoError(t, err)
	assert.Equal(t, owner.Size(), peer.Size())
	assert.True(t, peer.Published())

	pw, err := peer.PlaceUint64(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), pw.Load())

	// Operations travel both ways through the same pages.
	pw.FetchAdd(5)
	assert.Equal(t, uint64(12), w.Load())
	w2.FetchAdd(-1)
	pw2, err := peer.PlaceUint64(atomic64.PlacedSize)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), pw2.Load())

	// So do plain payload bytes.
	copy(owner.Payload()[2*atomic64.PlacedSize:], "payload bytes")
	assert.Equal(t, []byte("payload bytes"), peer.Payload()[2*atomic64.PlacedSize:2*atomic64.PlacedSize+13])

	require.NoError(t, peer.Detach())
	require.NoError(t, owner.Close())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAttachWaitsForPublish(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	w, err := owner.PlaceUint64(0)
	require.NoError(t, err)
	w.Init(1)

	retriesBefore := ReadStats().AttachRetries
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = owner.Publish()
	}()

	peer, err := Attach(ctx, path, nil)
	require.NoError(t, err)
	assert.Greater(t, ReadStats().AttachRetries, retriesBefore)

	pw, err := peer.PlaceUint64(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), pw.Load())

	require.NoError(t, peer.Detach())
	require.NoError(t, owner.Close())
}

func TestAttachBeforeCreate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	type attachResult struct {
		r   *Region
		err error
	}
	resc := make(chan attachResult, 1)
	go func() {
		r, err := Attach(ctx, path, nil)
		resc <- attachResult{r, err}
	}()

	time.Sleep(50 * time.Millisecond)
	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	w, err := owner.PlaceUint64(0)
	require.NoError(t, err)
	w.Init(42)
	require.NoError(t, owner.Publish())

	res := <-resc
	require.NoError(t, res.err)
	pw, err := res.r.PlaceUint64(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), pw.Load())

	require.NoError(t, res.r.Detach())
	require.NoError(t, owner.Close())
}

func TestAttachTimesOutOnUnpublishedRegion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	defer func() {
		_ = owner.Close()
	}()

	config := DefaultConfig()
	config.AttachTimeout = 150 * time.Millisecond
	start := time.Now()
	_, err = Attach(ctx, path, config)
	assert.ErrorIs(t, err, ErrNotPublished)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAttachHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(context.Background(), path, nil)
	require.NoError(t, err)
	defer func() {
		_ = owner.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = Attach(ctx, path, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), defaultAttachTimeout/2)
}

func TestAttachRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xee}, 256), 0o644))

	start := time.Now()
	_, err := Attach(context.Background(), path, nil)
	assert.ErrorIs(t, err, ErrBadMagic)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAttachRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stub")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xee}, 32), 0o644))

	_, err := Attach(context.Background(), path, nil)
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestAttachRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, owner.Publish())
	defer func() {
		_ = owner.Close()
	}()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, versionOffset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Attach(ctx, path, nil)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestAttachRejectsOversizedPayloadHeader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, owner.Publish())
	defer func() {
		_ = owner.Close()
	}()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, payloadSizeOffset+6)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Attach(ctx, path, nil)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestPublishTwice(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	defer func() {
		_ = owner.Close()
	}()

	require.NoError(t, owner.Publish())
	assert.ErrorIs(t, owner.Publish(), ErrAlreadyPublished)
}

func TestPlaceUint64Validation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	config := DefaultConfig()
	config.PayloadSize = 64
	owner, err := Create(ctx, path, config)
	require.NoError(t, err)
	defer func() {
		_ = owner.Close()
	}()

	_, err = owner.PlaceUint64(64 - atomic64.PlacedSize)
	assert.NoError(t, err)
	_, err = owner.PlaceUint64(64 - atomic64.PlacedSize + 8)
	assert.ErrorIs(t, err, atomic64.ErrOutOfRange)
	_, err = owner.PlaceUint64(-8)
	assert.ErrorIs(t, err, atomic64.ErrOutOfRange)
	_, err = owner.PlaceUint64(4)
	assert.ErrorIs(t, err, atomic64.ErrMisaligned)
}

func TestLifecycleStats(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	before := ReadStats()

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, owner.Publish())
	peer, err := Attach(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, peer.Detach())
	require.NoError(t, owner.Close())

	after := ReadStats()
	assert.GreaterOrEqual(t, after.Created, before.Created+1)
	assert.GreaterOrEqual(t, after.Published, before.Published+1)
	assert.GreaterOrEqual(t, after.Attached, before.Attached+1)
	assert.GreaterOrEqual(t, after.Detached, before.Detached+1)
	assert.GreaterOrEqual(t, after.Closed, before.Closed+1)
}

func TestCloseAndDetachAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, owner.Close())
	require.NoError(t, owner.Close())
	require.NoError(t, owner.Detach())

	var nilRegion *Region
	assert.Nil(t, nilRegion.Close())
	assert.Nil(t, nilRegion.Detach())
}

func TestCloseFromAttacherKeepsBackingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, owner.Publish())
	peer, err := Attach(ctx, path, nil)
	require.NoError(t, err)

	// Close on an attacher only unmaps; the creator still owns the file.
	require.NoError(t, peer.Close())
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	require.NoError(t, owner.Close())
	_, statErr = os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDebugRegionInfo(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomics.region")

	owner, err := Create(ctx, path, nil)
	require.NoError(t, err)
	defer func() {
		_ = owner.Close()
	}()
	require.NoError(t, owner.Publish())

	DebugRegionInfo(path)
	DebugRegionInfo(filepath.Join(t.TempDir(), "missing"))
}
