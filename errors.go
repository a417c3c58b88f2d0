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

package kaze

import (
	"errors"

	"github.com/starwing/kaze/shmem"
)

var (
	// ErrExist is returned by Create when the channel name is taken.
	ErrExist = shmem.ErrExist
	// ErrNotExist is returned by Attach, Unlink and CleanupHost when no
	// channel has the given name.
	ErrNotExist = shmem.ErrNotExist

	// ErrBusy is returned by Attach when another host is already attached.
	ErrBusy = errors.New("kaze: host already attached")
	// ErrCorrupt is returned by Attach when the region header does not
	// describe the object it lives in.
	ErrCorrupt = errors.New("kaze: corrupt region header")

	// ErrTooBig means the message can never fit the ring, regardless of how
	// much the consumer drains. The ring is left untouched.
	ErrTooBig = errors.New("kaze: message larger than ring capacity")
	// ErrWouldBlock is returned by the non-blocking variants when the
	// operation cannot proceed right now.
	ErrWouldBlock = errors.New("kaze: operation would block")
	// ErrTimeout is returned by the timed variants when the deadline passes
	// before the operation could proceed. Queue state is unchanged.
	ErrTimeout = errors.New("kaze: operation timed out")
	// ErrClosed means this side closed the channel or the peer is gone.
	// Terminal for blocking operations.
	ErrClosed = errors.New("kaze: channel closed")
	// ErrUnsupported means this platform has no address wait/wake backend,
	// so blocking operations cannot park.
	ErrUnsupported = errors.New("kaze: address wait not supported on this platform")
)
