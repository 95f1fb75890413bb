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
	"fmt"
	"os"
	"unsafe"

	"github.com/srediag/shm-atomics/pkg/atomic64"
)

// DebugRegionInfo print the header of the region whose backing file is in
// the `path`. It works on a snapshot of the file, so it is safe to run
// against a live region.
func DebugRegionInfo(path string) {
	mem, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(err)
		return
	}
	if len(mem) < headerLength {
		fmt.Printf("path:%s size:%d, too small for a region header\n", path, len(mem))
		return
	}
	magic := *(*uint32)(unsafe.Pointer(&mem[magicOffset]))
	version := *(*uint32)(unsafe.Pointer(&mem[versionOffset]))
	payload := *(*uint64)(unsafe.Pointer(&mem[payloadSizeOffset]))
	state := *(*uint64)(unsafe.Pointer(&mem[stateOffset+atomic64.ValueOffset]))
	fmt.Printf("path:%s magic:%#x version:%d payload:%d published:%v mapping:%d\n",
		path, magic, version, payload, state == statePublished, len(mem))
}
