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

	"golang.org/x/sys/unix"
)

// Cross-process waits must not set FUTEX_PRIVATE_FLAG: the word lives in a
// MAP_SHARED mapping visible to both sides.
const (
	futexWait = 0
	futexWake = 1
)

// forever is the timespec used for "no timeout" waits. The futex call stays
// signal-interruptible with a finite timeout; an expiry after ~34 years is
// reported as a spurious Woken and the caller re-checks its predicate.
var forever = unix.Timespec{Sec: 1 << 30}

func wait(addr *uint32, expected uint32, timeout time.Duration) Result {
	ts := forever
	if timeout >= 0 {
		ts = unix.NsecToTimespec(timeout.Nanoseconds())
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait,
		uintptr(expected),
		uintptr(unsafe.Pointer(&ts)),
		0, 0)
	switch errno {
	case 0, unix.EINTR:
		return Woken
	case unix.EAGAIN:
		return ValueChanged
	case unix.ETIMEDOUT:
		if timeout < 0 {
			return Woken
		}
		return TimedOut
	}
	return Woken
}

func wake(addr *uint32, all bool) {
	n := uintptr(1)
	if all {
		n = uintptr(int32(^uint32(0) >> 1)) // INT32_MAX
	}
	unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake,
		n,
		0, 0, 0)
}

func supported() bool { return true }
