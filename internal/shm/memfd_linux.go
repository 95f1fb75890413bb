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
	"fmt"

	"golang.org/x/sys/unix"
)

// MemfdCreate wraps memfd_create(2). The name is only a debugging label
// that shows up under /proc/self/fd.
func MemfdCreate(name string, flags int) (int, error) {
	return unix.MemfdCreate(name, flags)
}

// CreateMemfd creates an anonymous memfd segment, sizes it and maps it
// shared. Peers attach by receiving the descriptor out of band and calling
// OpenMemfd.
func CreateMemfd(name string, size int) (*Mapping, error) {
	memFd, err := MemfdCreate(name, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(memFd, int64(size)); err != nil {
		_ = unix.Close(memFd)
		return nil, fmt.Errorf("create memfd mapping truncate share memory failed,%w", err)
	}
	mem, err := unix.Mmap(memFd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(memFd)
		return nil, err
	}
	for i := 0; i < len(mem); i++ {
		mem[i] = 0
	}
	return &Mapping{Data: mem, Path: name, Type: MemMapTypeMemFd, memFd: memFd}, nil
}

// OpenMemfd maps an existing memfd segment. The mapping size is the
// segment size at the time of the call.
func OpenMemfd(name string, memFd int) (*Mapping, error) {
	var fileInfo unix.Stat_t
	if err := unix.Fstat(memFd, &fileInfo); err != nil {
		return nil, err
	}
	mappingSize := int(fileInfo.Size)

	//words in the segment should align to 8 byte boundary
	if isArmArch() && mappingSize%16 != 0 {
		return nil, fmt.Errorf("the memory size of mapping should be a multiple of 16")
	}
	mem, err := unix.Mmap(memFd, 0, mappingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Mapping{Data: mem, Path: name, Type: MemMapTypeMemFd, memFd: memFd}, nil
}
