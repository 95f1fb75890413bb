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

// Package shm provides the mmap-backed segments that shared regions are
// built on. A segment is either a file (typically under /dev/shm) that
// several processes open by path, or an anonymous memfd whose descriptor
// is handed to peers out of band.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"

	"github.com/srediag/shm-atomics/internal/logging"
)

// MemMapType is the backing type of a Mapping.
type MemMapType uint8

const (
	// MemMapTypeDevShmFile mmap a file, the path is usually in `/dev/shm`.
	MemMapTypeDevShmFile MemMapType = iota
	// MemMapTypeMemFd mmap an anonymous memfd.
	MemMapTypeMemFd
)

var (
	ErrShareMemoryHadNotLeftSpace = errors.New("share memory had not left space")
	ErrFileExisted                = errors.New("share memory file already existed")
	ErrMemfdNotSupported          = errors.New("memfd_create is not supported on this platform")
)

var internalLogger = logging.New("shm", nil)

// Mapping is a shared memory segment mapped into this process.
type Mapping struct {
	Data  []byte
	Path  string
	Type  MemMapType
	memFd int
}

// Create creates the backing file at path, sizes it and maps it shared.
// It fails if the file already exists or if a /dev/shm path would not fit
// in the tmpfs free space.
func Create(path string, size int) (*Mapping, error) {
	//ignore mkdir error
	_ = os.MkdirAll(filepath.Dir(path), os.ModePerm)
	if !CanCreateOnDevShm(uint64(size), path) {
		return nil, fmt.Errorf("err:%s path:%s, size:%d", ErrShareMemoryHadNotLeftSpace.Error(), path, size)
	}
	// O_EXCL makes creation itself the existence check, so two creators
	// racing on one path cannot both end up mapping it.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, os.ModePerm)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("create mapping path:%s, %w", path, ErrFileExisted)
		}
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			internalLogger.Warnf("file close error: %v", cerr)
		}
	}()

	if err := f.Truncate(int64(size)); err != nil {
		removeIncomplete(path)
		return nil, fmt.Errorf("truncate share memory failed,%s", err.Error())
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		removeIncomplete(path)
		return nil, err
	}
	for i := 0; i < len(mem); i++ {
		mem[i] = 0
	}
	return &Mapping{Data: mem, Path: path, Type: MemMapTypeDevShmFile}, nil
}

// Open maps an existing backing file shared. The mapping size is the file
// size at the time of the call.
func Open(path string) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR, os.ModePerm)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			internalLogger.Warnf("file close error: %v", cerr)
		}
	}()
	fileInfo, err := f.Stat()
	if err != nil {
		return nil, err
	}
	mappingSize := int(fileInfo.Size())

	//words in the segment should align to 8 byte boundary
	if isArmArch() && mappingSize%16 != 0 {
		return nil, fmt.Errorf("the memory size of mapping should be a multiple of 16")
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, mappingSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Mapping{Data: mem, Path: path, Type: MemMapTypeDevShmFile}, nil
}

// Close unmaps the segment and, for memfd mappings, closes the descriptor.
// The backing file of a file mapping stays in place; see Unlink.
func (m *Mapping) Close() error {
	if m == nil || m.Data == nil {
		return nil
	}
	if err := unix.Munmap(m.Data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	m.Data = nil
	if m.Type == MemMapTypeMemFd {
		if err := unix.Close(m.memFd); err != nil {
			internalLogger.Warnf("mapping close fd:%d, error:%s", m.memFd, err.Error())
		} else {
			internalLogger.Infof("mapping close fd:%d", m.memFd)
		}
	}
	return nil
}

// Unlink removes the backing file of a file mapping. Peers that still have
// the segment mapped keep their view until they close it.
func (m *Mapping) Unlink() error {
	if m == nil || m.Type != MemMapTypeDevShmFile {
		return nil
	}
	if err := os.Remove(m.Path); err != nil {
		internalLogger.Warnf("mapping remove file:%s failed, error=%s", m.Path, err.Error())
		return err
	}
	internalLogger.Infof("mapping remove file:%s", m.Path)
	return nil
}

// removeIncomplete drops a backing file whose setup failed partway, so a
// later Create of the same path does not trip the existence check.
func removeIncomplete(path string) {
	if err := os.Remove(path); err != nil {
		internalLogger.Warnf("mapping remove file:%s failed, error=%s", path, err.Error())
	}
}

// Fd returns the memfd descriptor, or -1 for file mappings.
func (m *Mapping) Fd() int {
	if m.Type != MemMapTypeMemFd {
		return -1
	}
	return m.memFd
}

// PathExists reports whether path names an existing file.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CanCreateOnDevShm reports whether size bytes would fit on the tmpfs
// behind /dev/shm. Paths outside /dev/shm always pass, as do platforms
// without one.
func CanCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS == "linux" && strings.HasPrefix(path, "/dev/shm") {
		stat, err := disk.Usage("/dev/shm")
		if err != nil {
			internalLogger.Warnf("couldn't stat /dev/shm: %v", err)
			return true
		}
		return stat.Free >= size
	}
	return true
}

func isArmArch() bool {
	return strings.Contains(runtime.GOARCH, "arm")
}
