//go:build linux

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

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMemfdRoundtrip(t *testing.T) {
	const size = 4096

	owner, err := CreateMemfd("test-memfd-roundtrip", size)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, size, len(owner.Data))
	assert.Equal(t, MemMapTypeMemFd, owner.Type)
	assert.GreaterOrEqual(t, owner.Fd(), 0)

	copy(owner.Data, "hello over memfd")

	// Receiving a descriptor over SCM_RIGHTS dups it; model that here.
	peerFd, err := unix.Dup(owner.Fd())
	if err != nil {
		t.Fatal(err)
	}
	peer, err := OpenMemfd("test-memfd-roundtrip", peerFd)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, size, len(peer.Data))
	assert.Equal(t, []byte("hello over memfd"), peer.Data[:16])

	// Unlink is a no-op for anonymous segments.
	assert.Nil(t, peer.Unlink())

	assert.Nil(t, peer.Close())
	assert.Nil(t, owner.Close())
}

func TestOpenMemfdRejectsBadFd(t *testing.T) {
	_, err := OpenMemfd("bogus", -1)
	assert.Error(t, err)
}
