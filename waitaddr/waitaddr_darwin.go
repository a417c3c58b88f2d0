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

/*
#cgo CFLAGS: -O2 -Wall

#include <errno.h>
#include <stdint.h>
#include <stddef.h>
#include <AvailabilityMacros.h>

// Private but stable since 10.12; the fallback when the public os_sync API
// is unavailable. timeout_us == 0 means wait forever.
extern int __ulock_wait(uint32_t operation, void *addr, uint64_t value, uint32_t timeout_us);
extern int __ulock_wake(uint32_t operation, void *addr, uint64_t wake_value);

#define UL_COMPARE_AND_WAIT_SHARED 3
#define ULF_WAKE_ALL 0x00000100

#if defined(__MAC_OS_X_VERSION_MAX_ALLOWED) && __MAC_OS_X_VERSION_MAX_ALLOWED >= 140400
#include <os/os_sync_wait_on_address.h>
#define KZ_HAVE_OS_SYNC 1
#endif

// kz_wait returns 0 when woken (or the value no longer matched) and 1 on
// timeout. The word must be in a shared mapping, hence the SHARED variants.
static int kz_wait(void *addr, uint32_t expected, int64_t timeout_ns) {
	int rc;
#ifdef KZ_HAVE_OS_SYNC
	if (__builtin_available(macOS 14.4, *)) {
		if (timeout_ns < 0) {
			rc = os_sync_wait_on_address(addr, (uint64_t)expected, 4,
				OS_SYNC_WAIT_ON_ADDRESS_SHARED);
		} else {
			rc = os_sync_wait_on_address_with_timeout(addr, (uint64_t)expected, 4,
				OS_SYNC_WAIT_ON_ADDRESS_SHARED,
				OS_CLOCK_MACH_ABSOLUTE_TIME, (uint64_t)timeout_ns);
		}
		if (rc < 0 && errno == ETIMEDOUT) {
			return 1;
		}
		return 0;
	}
#endif
	uint32_t timeout_us = 0;
	if (timeout_ns >= 0) {
		timeout_us = (uint32_t)(timeout_ns / 1000);
		if (timeout_us == 0) {
			timeout_us = 1;
		}
	}
	rc = __ulock_wait(UL_COMPARE_AND_WAIT_SHARED, addr, (uint64_t)expected, timeout_us);
	if (rc < 0 && errno == ETIMEDOUT) {
		return 1;
	}
	return 0;
}

static void kz_wake(void *addr, int all) {
#ifdef KZ_HAVE_OS_SYNC
	if (__builtin_available(macOS 14.4, *)) {
		if (all) {
			os_sync_wake_by_address_all(addr, 4, OS_SYNC_WAKE_BY_ADDRESS_SHARED);
		} else {
			os_sync_wake_by_address_any(addr, 4, OS_SYNC_WAKE_BY_ADDRESS_SHARED);
		}
		return;
	}
#endif
	uint32_t op = UL_COMPARE_AND_WAIT_SHARED;
	if (all) {
		op |= ULF_WAKE_ALL;
	}
	__ulock_wake(op, addr, 0);
}
*/
import "C"

import (
	"time"
	"unsafe"
)

func wait(addr *uint32, expected uint32, timeout time.Duration) Result {
	ns := int64(-1)
	if timeout >= 0 {
		ns = timeout.Nanoseconds()
	}
	rc := C.kz_wait(unsafe.Pointer(addr), C.uint32_t(expected), C.int64_t(ns))
	if rc == 1 {
		return TimedOut
	}
	// Neither backend distinguishes a wake from an immediate return on value
	// mismatch; both count as Woken and the caller re-checks its predicate.
	return Woken
}

func wake(addr *uint32, all bool) {
	flag := C.int(0)
	if all {
		flag = 1
	}
	C.kz_wake(unsafe.Pointer(addr), flag)
}

func supported() bool { return true }
