//go:build unix && !linux

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

// memfd_create is linux only; other unixes fall back to file mappings.

func MemfdCreate(name string, flags int) (int, error) {
	return -1, ErrMemfdNotSupported
}

func CreateMemfd(name string, size int) (*Mapping, error) {
	return nil, ErrMemfdNotSupported
}

func OpenMemfd(name string, memFd int) (*Mapping, error) {
	return nil, ErrMemfdNotSupported
}
