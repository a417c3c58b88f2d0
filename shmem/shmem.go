/*
 * Copyright 2025 Kaze Authors
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

// Package shmem maps named shared-memory objects shared between cooperating
// processes on one machine.
//
// A name is a POSIX shm-style name such as "/kz-chan"; the leading slash is
// optional. On Linux the object is a file under /dev/shm, which is what
// shm_open produces. On other Unix systems, which have no /dev/shm, it is a
// file under the system temporary directory mapped with MAP_SHARED; the
// mapping semantics are identical. On Windows it is a pagefile-backed named
// section.
//
// Create opens with create-exclusive semantics and sizes the object; Open
// attaches to an existing object and discovers its size. Both return the
// mapping as a byte slice aliased by every process that maps the same name.
package shmem

import "errors"

var (
	// ErrExist is returned by Create when the name is already in use.
	ErrExist = errors.New("shmem: object already exists")
	// ErrNotExist is returned by Open and Unlink when no object has the
	// given name.
	ErrNotExist = errors.New("shmem: object does not exist")
)

// Mapping is a shared memory object mapped into this process.
type Mapping struct {
	name string
	data []byte
	os   osMapping
}

// Name returns the name the mapping was created or opened with.
func (m *Mapping) Name() string { return m.name }

// Bytes returns the mapped region. The slice aliases memory shared with
// other processes; it is valid until Close.
func (m *Mapping) Bytes() []byte { return m.data }

// Size returns the size of the mapped region in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Create makes a new named object of the given size and maps it read/write.
// It fails with ErrExist if the name is taken. perm is the POSIX file mode
// for the backing object; it is ignored on Windows.
func Create(name string, size int, perm uint32) (*Mapping, error) {
	return create(name, size, perm)
}

// Open maps an existing named object read/write. The returned mapping covers
// the object's full current size.
func Open(name string) (*Mapping, error) {
	return open(name)
}

// Close unmaps the region and releases the OS handle. The object itself
// stays alive for other processes until unlinked (POSIX) or until the last
// handle goes away (Windows).
func (m *Mapping) Close() error {
	return m.close()
}

// Unlink removes the name so no further Open can find the object. Existing
// mappings stay valid. On Windows sections are reference-counted and have no
// unlink; the call succeeds without doing anything.
func Unlink(name string) error {
	return unlink(name)
}
