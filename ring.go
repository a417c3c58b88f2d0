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
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/starwing/kaze/waitaddr"
)

/*
 *	Ring layout (little-endian, every field and offset 4-byte aligned):
 *
 *	+--------4B--------+--------4B--------+--------4B--------+
 *	|     capacity     |       head       |       tail       |
 *	+------------------+------------------+------------------+
 *	|       used       |       need       |  data area ...   |
 *	+------------------+------------------+------------------+
 *
 *	A frame in the data area is a u32 length prefix, len payload bytes and
 *	0-3 zero bytes of padding back to 4-byte alignment. The prefix never
 *	straddles the capacity boundary (tail stays 4-aligned and capacity is a
 *	multiple of 4); the payload may.
 */

const ringHeaderSize = 20

// ringHeader sits in the shared mapping and is read and written by two
// processes at once; cross-side fields go through sync/atomic only.
type ringHeader struct {
	capacity uint32 // data-area size, multiple of 4, constant after init
	head     uint32 // next frame to read; consumer-owned, producer never reads it
	tail     uint32 // next frame to write; producer-owned, consumer never reads it
	used     uint32 // occupied bytes incl. prefixes and padding; atomic, both sides
	need     uint32 // bytes a parked producer still waits for; atomic, signed, both sides
}

func init() {
	if unsafe.Sizeof(ringHeader{}) != ringHeaderSize {
		panic(fmt.Sprintf("kaze: ringHeader size is %d, expected %d",
			unsafe.Sizeof(ringHeader{}), ringHeaderSize))
	}
}

// debugChecks gates the invariant assertions on the hot paths. The framing
// proofs rely on these holding, so hot paths need not recheck in release
// builds; flip to true when hacking on the framing code.
const debugChecks = false

// align4 rounds n up to the next multiple of 4.
func align4(n uint32) uint32 { return (n + 3) &^ 3 }

// ring is one direction of a channel: an SPSC byte queue over a header and
// data area living in the shared mapping. closed is supplied by the owning
// channel and consulted between blocking retries.
type ring struct {
	hdr    *ringHeader
	data   []byte
	closed func() bool
}

// ringAt carves a ring out of buf, which must hold ringHeaderSize+capacity
// bytes. When initialize is set the header is written from scratch;
// otherwise it is taken as found (attach path).
func ringAt(buf []byte, capacity uint32, initialize bool, closed func() bool) ring {
	hdr := (*ringHeader)(unsafe.Pointer(&buf[0]))
	if initialize {
		hdr.capacity = capacity
		hdr.head = 0
		hdr.tail = 0
		atomic.StoreUint32(&hdr.used, 0)
		atomic.StoreUint32(&hdr.need, 0)
	}
	return ring{
		hdr:    hdr,
		data:   buf[ringHeaderSize : ringHeaderSize+capacity],
		closed: closed,
	}
}

func (r *ring) cap() uint32  { return r.hdr.capacity }
func (r *ring) used() uint32 { return atomic.LoadUint32(&r.hdr.used) }

// tryPush appends one frame without blocking. ErrTooBig if the frame can
// never fit; ErrWouldBlock if it does not fit right now, in which case the
// shortfall has been published in the need word for the consumer to drain.
func (r *ring) tryPush(b []byte) error {
	h := r.hdr
	if (uint64(len(b))+4+3)&^3 > uint64(h.capacity) {
		return ErrTooBig
	}
	fsize := align4(4 + uint32(len(b)))
	used := atomic.LoadUint32(&h.used)
	for {
		free := h.capacity - used
		if fsize <= free {
			break
		}
		atomic.StoreUint32(&h.need, fsize-free)
		// Re-check after publishing the shortfall: a release landing between
		// the used load and the need store would never see it and never wake
		// us.
		reloaded := atomic.LoadUint32(&h.used)
		if reloaded == used {
			return ErrWouldBlock
		}
		used = reloaded
	}

	tail := h.tail
	if debugChecks {
		r.assertOffset(tail)
	}
	binary.LittleEndian.PutUint32(r.data[tail:tail+4], uint32(len(b)))
	pos := tail + 4
	if pos == h.capacity {
		pos = 0
	}
	n := copy(r.data[pos:h.capacity], b)
	if n < len(b) {
		copy(r.data, b[n:])
	}
	for off := 4 + uint32(len(b)); off < fsize; off++ {
		r.data[(tail+off)%h.capacity] = 0
	}
	h.tail = (tail + fsize) % h.capacity

	// The add publishes the payload to the consumer. Waking is only needed
	// on the empty->non-empty edge; the add is the only increment, so a
	// result of exactly fsize means the ring was empty the instant before.
	if atomic.AddUint32(&h.used, fsize) == fsize {
		waitaddr.Wake(&h.used, false)
	}
	atomic.StoreUint32(&h.need, 0)
	return nil
}

// push blocks until the frame fits, the timeout passes, or the channel
// closes. timeout < 0 waits forever.
func (r *ring) push(b []byte, timeout time.Duration) error {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		err := r.tryPush(b)
		if err != ErrWouldBlock {
			return err
		}
		if r.closed() {
			return ErrClosed
		}
		// Park on need with the shortfall tryPush just published. A consumer
		// release in between changes the word and the wait falls through.
		need := atomic.LoadUint32(&r.hdr.need)
		if int32(need) > 0 {
			switch waitaddr.Wait(&r.hdr.need, need, waitTimeout(timeout, deadline)) {
			case waitaddr.TimedOut:
				return ErrTimeout
			case waitaddr.Unsupported:
				return ErrUnsupported
			}
		}
		if r.closed() {
			return ErrClosed
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			if err := r.tryPush(b); err != ErrWouldBlock {
				return err
			}
			return ErrTimeout
		}
	}
}

// tryPop returns a view of the frame at head without consuming it; the
// caller consumes by releasing the frame. ErrWouldBlock when the ring is
// empty.
func (r *ring) tryPop() (Frame, error) {
	h := r.hdr
	used := atomic.LoadUint32(&h.used) // acquires the producer's payload writes
	if used == 0 {
		return Frame{}, ErrWouldBlock
	}
	head := h.head
	if debugChecks {
		r.assertOffset(head)
	}
	length := binary.LittleEndian.Uint32(r.data[head : head+4])
	fsize := align4(4 + length)
	if debugChecks && (4+length > used || fsize > h.capacity) {
		panic(fmt.Sprintf("kaze: frame length %d at head %d exceeds used %d", length, head, used))
	}
	start := head + 4
	if start == h.capacity {
		start = 0
	}
	var a, b []byte
	if end := start + length; end <= h.capacity {
		a = r.data[start:end]
	} else {
		a = r.data[start:h.capacity]
		b = r.data[:end-h.capacity]
	}
	return Frame{r: r, size: fsize, a: a, b: b}, nil
}

// pop blocks until a frame is available, the timeout passes, or the channel
// closes. timeout < 0 waits forever.
func (r *ring) pop(timeout time.Duration) (Frame, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		f, err := r.tryPop()
		if err != ErrWouldBlock {
			return f, err
		}
		if r.closed() {
			return Frame{}, ErrClosed
		}
		switch waitaddr.Wait(&r.hdr.used, 0, waitTimeout(timeout, deadline)) {
		case waitaddr.TimedOut:
			return Frame{}, ErrTimeout
		case waitaddr.Unsupported:
			return Frame{}, ErrUnsupported
		}
		if r.closed() {
			return Frame{}, ErrClosed
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			if f, err := r.tryPop(); err != ErrWouldBlock {
				return f, err
			}
			return Frame{}, ErrTimeout
		}
	}
}

// release consumes a popped frame: advances head, returns the bytes to the
// producer and, if the producer published a shortfall, drains it and wakes
// the producer once the shortfall is covered.
func (r *ring) release(size uint32) {
	h := r.hdr
	h.head = (h.head + size) % h.capacity
	atomic.AddUint32(&h.used, ^(size - 1))
	if atomic.LoadUint32(&h.need) != 0 {
		if int32(atomic.AddUint32(&h.need, ^(size-1))) <= 0 {
			waitaddr.Wake(&h.need, true)
		}
	}
}

// wakeAll unparks every waiter on both words. Used on close so blocked
// push/pop calls re-check the closed flag promptly.
func (r *ring) wakeAll() {
	waitaddr.Wake(&r.hdr.used, true)
	waitaddr.Wake(&r.hdr.need, true)
}

func (r *ring) assertOffset(off uint32) {
	if off%4 != 0 || off >= r.hdr.capacity {
		panic(fmt.Sprintf("kaze: ring offset %d out of bounds (capacity %d)", off, r.hdr.capacity))
	}
}

// waitTimeout converts a deadline into the bound for one OS wait.
func waitTimeout(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout < 0 {
		return waitaddr.NoTimeout
	}
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}
