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

package waitaddr

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WaitOnAddress lives in kernelbase (api-ms-win-core-synch-l1-2-0); resolve
// dynamically so the package still loads on ancient systems and Supported
// can report the truth.
var (
	modSynch = windows.NewLazySystemDLL("kernelbase.dll")

	procWaitOnAddress       = modSynch.NewProc("WaitOnAddress")
	procWakeByAddressSingle = modSynch.NewProc("WakeByAddressSingle")
	procWakeByAddressAll    = modSynch.NewProc("WakeByAddressAll")
)

func wait(addr *uint32, expected uint32, timeout time.Duration) Result {
	if procWaitOnAddress.Find() != nil {
		return Unsupported
	}
	ms := uintptr(windows.INFINITE)
	if timeout >= 0 {
		ms = uintptr((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	compare := expected
	r1, _, errno := procWaitOnAddress.Call(
		uintptr(unsafe.Pointer(addr)),
		uintptr(unsafe.Pointer(&compare)),
		4,
		ms)
	if r1 == 0 {
		if errno == windows.ERROR_TIMEOUT && timeout >= 0 {
			return TimedOut
		}
		return Woken
	}
	// TRUE covers both a real wake and an immediate return because the word
	// no longer matched; callers re-check the predicate either way.
	return Woken
}

func wake(addr *uint32, all bool) {
	if all {
		if procWakeByAddressAll.Find() == nil {
			procWakeByAddressAll.Call(uintptr(unsafe.Pointer(addr)))
		}
		return
	}
	if procWakeByAddressSingle.Find() == nil {
		procWakeByAddressSingle.Call(uintptr(unsafe.Pointer(addr)))
	}
}

func supported() bool {
	return procWaitOnAddress.Find() == nil
}
