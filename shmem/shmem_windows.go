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

package shmem

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

type osMapping struct {
	handle windows.Handle
	view   uintptr
}

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procCreateFileMappingW = modkernel32.NewProc("CreateFileMappingW")
	procOpenFileMappingW   = modkernel32.NewProc("OpenFileMappingW")
)

// sectionName maps a POSIX-style shm name onto the per-session kernel object
// namespace.
func sectionName(name string) string {
	return `Local\` + strings.TrimPrefix(name, "/")
}

func create(name string, size int, perm uint32) (*Mapping, error) {
	_ = perm // sections carry the caller's default security descriptor
	n16, err := windows.UTF16PtrFromString(sectionName(name))
	if err != nil {
		return nil, fmt.Errorf("shmem: bad name %q: %w", name, err)
	}
	// Raw syscall rather than windows.CreateFileMapping: the last error must
	// be captured atomically to detect ERROR_ALREADY_EXISTS on a valid
	// handle, which is the create-exclusive signal.
	h, _, errno := procCreateFileMappingW.Call(
		uintptr(windows.InvalidHandle),
		0,
		windows.PAGE_READWRITE,
		uintptr(uint64(size)>>32),
		uintptr(uint32(size)),
		uintptr(unsafe.Pointer(n16)))
	if h == 0 {
		return nil, fmt.Errorf("shmem: create %q: %w", name, errno)
	}
	handle := windows.Handle(h)
	if errno == windows.ERROR_ALREADY_EXISTS {
		windows.CloseHandle(handle)
		return nil, ErrExist
	}
	view, err := windows.MapViewOfFile(handle,
		windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("shmem: map view %q: %w", name, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(view)), size)
	return &Mapping{name: name, data: data, os: osMapping{handle: handle, view: view}}, nil
}

func open(name string) (*Mapping, error) {
	n16, err := windows.UTF16PtrFromString(sectionName(name))
	if err != nil {
		return nil, fmt.Errorf("shmem: bad name %q: %w", name, err)
	}
	h, _, errno := procOpenFileMappingW.Call(
		uintptr(uint32(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE)),
		0,
		uintptr(unsafe.Pointer(n16)))
	if h == 0 {
		if errno == windows.ERROR_FILE_NOT_FOUND {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("shmem: open %q: %w", name, errno)
	}
	handle := windows.Handle(h)
	view, err := windows.MapViewOfFile(handle,
		windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, 0)
	if err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("shmem: map view %q: %w", name, err)
	}
	var mbi windows.MemoryBasicInformation
	if err = windows.VirtualQuery(view, &mbi, unsafe.Sizeof(mbi)); err != nil {
		windows.UnmapViewOfFile(view)
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("shmem: query view %q: %w", name, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(view)), int(mbi.RegionSize))
	return &Mapping{name: name, data: data, os: osMapping{handle: handle, view: view}}, nil
}

func (m *Mapping) close() error {
	var firstErr error
	if m.os.view != 0 {
		if err := windows.UnmapViewOfFile(m.os.view); err != nil && firstErr == nil {
			firstErr = err
		}
		m.os.view = 0
		m.data = nil
	}
	if m.os.handle != 0 {
		if err := windows.CloseHandle(m.os.handle); err != nil && firstErr == nil {
			firstErr = err
		}
		m.os.handle = 0
	}
	return firstErr
}

// Sections disappear with their last handle; there is no name to remove.
func unlink(name string) error { return nil }
