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

//go:build unix

package shmem

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

type osMapping struct {
	fd int
}

// objectPath turns a shm name into the backing file path. shmDir is
// per-platform: /dev/shm on Linux, the tmp directory elsewhere.
func objectPath(name string) string {
	return shmDir + "/" + strings.TrimPrefix(name, "/")
}

func create(name string, size int, perm uint32) (*Mapping, error) {
	path := objectPath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR|unix.O_CLOEXEC, perm)
	if err != nil {
		if err == unix.EEXIST {
			return nil, ErrExist
		}
		return nil, fmt.Errorf("shmem: create %q: %w", name, err)
	}
	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmem: size %q to %d: %w", name, size, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("shmem: mmap %q: %w", name, err)
	}
	return &Mapping{name: name, data: data, os: osMapping{fd: fd}}, nil
}

func open(name string) (*Mapping, error) {
	path := objectPath(name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("shmem: open %q: %w", name, err)
	}
	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmem: stat %q: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmem: mmap %q: %w", name, err)
	}
	return &Mapping{name: name, data: data, os: osMapping{fd: fd}}, nil
}

func (m *Mapping) close() error {
	var firstErr error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}
	if m.os.fd >= 0 {
		if err := unix.Close(m.os.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		m.os.fd = -1
	}
	return firstErr
}

func unlink(name string) error {
	err := unix.Unlink(objectPath(name))
	if err == unix.ENOENT {
		return ErrNotExist
	}
	return err
}
