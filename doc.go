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

// Package kaze is a lock-free shared-memory channel between two cooperating
// processes on the same machine: a sidecar, which creates the channel, and a
// host, which attaches to it. Each channel carries two independent
// single-producer/single-consumer byte rings, one per direction, inside one
// named shared-memory region. Messages are variable-sized byte frames; pops
// are near zero-copy, returning views straight into the mapping.
//
// Blocking operations park on 32-bit words in the shared region through the
// waitaddr package (futex on Linux, os_sync/ulock on macOS, WaitOnAddress on
// Windows), so backpressure crosses the process boundary without spinning.
//
// The sidecar side:
//
//	ch, err := kaze.Create("/kz-demo", kaze.DefaultIdent("demo"), 64<<10, 64<<10)
//	if err != nil {
//	    // handle error
//	}
//	defer ch.Close()
//	if err := ch.Push([]byte("hello")); err != nil {
//	    // handle error
//	}
//
// The host side:
//
//	ch, err := kaze.Attach("/kz-demo")
//	if err != nil {
//	    // handle error
//	}
//	defer ch.Close()
//	f, err := ch.Pop()
//	if err != nil {
//	    // handle error
//	}
//	a, b := f.Parts() // up to two slices when the frame wraps
//	process(a, b)
//	f.Release()
//
// Exactly one goroutine may push and one may pop per channel instance and
// direction; the two directions are independent and may be driven
// concurrently.
package kaze
