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

import "github.com/bytedance/gopkg/lang/dirtmake"

// Frame is one popped message. Its parts alias the shared mapping directly;
// they stay valid until Release, which hands the bytes back to the producer.
// A Frame belongs to the goroutine that popped it and must be released
// exactly once.
type Frame struct {
	r        *ring
	size     uint32 // aligned size incl. prefix and padding
	a, b     []byte
	released bool
}

// Parts returns the payload as up to two contiguous slices. The second slice
// is non-nil only when the frame straddles the ring's wraparound seam.
func (f *Frame) Parts() ([]byte, []byte) { return f.a, f.b }

// Len returns the payload length in bytes.
func (f *Frame) Len() int { return len(f.a) + len(f.b) }

// Bytes copies the payload into a fresh contiguous slice. The copy survives
// Release.
func (f *Frame) Bytes() []byte {
	n := f.Len()
	out := dirtmake.Bytes(n, n)
	copy(out[copy(out, f.a):], f.b)
	return out
}

// AppendTo appends the payload to dst and returns the result.
func (f *Frame) AppendTo(dst []byte) []byte {
	return append(append(dst, f.a...), f.b...)
}

// Release consumes the frame: the ring's head advances past it and the bytes
// become writable by the producer again. The parts must not be used
// afterwards. Releasing twice is a no-op.
func (f *Frame) Release() {
	if f.released || f.r == nil {
		return
	}
	f.released = true
	f.r.release(f.size)
	f.a, f.b = nil, nil
}
