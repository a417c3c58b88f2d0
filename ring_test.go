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
	"bytes"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRing builds a ring over a plain heap buffer; the framing protocol does
// not care whether the backing memory is shared.
func testRing(t *testing.T, capacity uint32) *ring {
	t.Helper()
	buf := make([]byte, ringHeaderSize+capacity)
	r := ringAt(buf, capacity, true, func() bool { return false })
	return &r
}

// closableRing is testRing plus a switch the close tests flip.
func closableRing(capacity uint32) (*ring, *atomic.Bool) {
	var closed atomic.Bool
	buf := make([]byte, ringHeaderSize+capacity)
	r := ringAt(buf, capacity, true, closed.Load)
	return &r, &closed
}

func popBytes(t *testing.T, r *ring) []byte {
	t.Helper()
	f, err := r.tryPop()
	require.NoError(t, err)
	b := f.Bytes()
	f.Release()
	return b
}

func TestRingPushPop(t *testing.T) {
	r := testRing(t, 64)

	require.NoError(t, r.tryPush([]byte("hello")))
	assert.Equal(t, uint32(12), r.used()) // align4(4+5)

	f, err := r.tryPop()
	require.NoError(t, err)
	assert.Equal(t, 5, f.Len())
	a, b := f.Parts()
	assert.Equal(t, []byte("hello"), a)
	assert.Nil(t, b)
	f.Release()
	assert.Equal(t, uint32(0), r.used())
}

func TestRingFIFO(t *testing.T) {
	r := testRing(t, 256)

	msgs := [][]byte{
		[]byte("first"),
		[]byte("second message"),
		{},
		[]byte("third"),
		bytes.Repeat([]byte{0xAB}, 100),
	}
	for _, m := range msgs {
		require.NoError(t, r.tryPush(m))
	}
	for i, want := range msgs {
		got := popBytes(t, r)
		assert.Equal(t, want, got, "message %d", i)
	}
	_, err := r.tryPop()
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestRingEmptyFrame(t *testing.T) {
	r := testRing(t, 16)

	require.NoError(t, r.tryPush(nil))
	assert.Equal(t, uint32(4), r.used())

	f, err := r.tryPop()
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	f.Release()
	assert.Equal(t, uint32(0), r.used())
}

func TestRingTooBig(t *testing.T) {
	r := testRing(t, 32)

	before := *r.hdr
	err := r.tryPush(bytes.Repeat([]byte("x"), 40))
	assert.ErrorIs(t, err, ErrTooBig)
	assert.Equal(t, before, *r.hdr)

	// align4(4+29) = 36 > 32: one byte over the largest fitting payload.
	assert.ErrorIs(t, r.tryPush(make([]byte, 29)), ErrTooBig)
	// align4(4+28) = 32 fits exactly.
	require.NoError(t, r.tryPush(make([]byte, 28)))
	assert.Equal(t, uint32(32), r.used())
}

func TestRingBackpressureNeed(t *testing.T) {
	r := testRing(t, 64)

	payload := bytes.Repeat([]byte("p"), 24) // frame size 28
	require.NoError(t, r.tryPush(payload))
	require.NoError(t, r.tryPush(payload))
	assert.Equal(t, uint32(56), r.used())

	// Third frame wants 28, only 8 free: shortfall of 20 is published.
	err := r.tryPush(payload)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, uint32(20), atomic.LoadUint32(&r.hdr.need))

	// One release drains the shortfall past zero and the retry succeeds.
	f, err := r.tryPop()
	require.NoError(t, err)
	f.Release()
	require.NoError(t, r.tryPush(payload))
	assert.Equal(t, uint32(56), r.used())
	assert.Equal(t, uint32(0), atomic.LoadUint32(&r.hdr.need))
}

func TestRingWouldBlockLeavesStateAlone(t *testing.T) {
	r := testRing(t, 32)
	require.NoError(t, r.tryPush(bytes.Repeat([]byte("a"), 20))) // frame 24

	head, tail := r.hdr.head, r.hdr.tail
	used := r.used()
	data := append([]byte(nil), r.data...)

	assert.ErrorIs(t, r.tryPush(bytes.Repeat([]byte("b"), 8)), ErrWouldBlock)

	assert.Equal(t, head, r.hdr.head)
	assert.Equal(t, tail, r.hdr.tail)
	assert.Equal(t, used, r.used())
	assert.Equal(t, data, r.data)
}

func TestRingWrapAround(t *testing.T) {
	r := testRing(t, 32)

	// Advance the ring so the next payload straddles the seam.
	require.NoError(t, r.tryPush([]byte("AAAAA"))) // frame 12, tail -> 12
	f, err := r.tryPop()
	require.NoError(t, err)
	f.Release()

	payload := bytes.Repeat([]byte("B"), 20) // frame 24, 16 bytes then 4 wrapped
	require.NoError(t, r.tryPush(payload))

	f, err = r.tryPop()
	require.NoError(t, err)
	a, b := f.Parts()
	assert.Len(t, a, 16)
	assert.Len(t, b, 4)
	assert.Equal(t, payload, f.Bytes())
	f.Release()
	assert.Equal(t, uint32(0), r.used())
}

func TestRingWrapAllOffsets(t *testing.T) {
	// Whatever the seam position, a wrapped push delivers the same bytes as
	// an unwrapped one.
	const capacity = 64
	for shift := uint32(0); shift < capacity; shift += 4 {
		r := testRing(t, capacity)
		if shift > 0 {
			require.NoError(t, r.tryPush(make([]byte, shift-4)))
			f, err := r.tryPop()
			require.NoError(t, err)
			f.Release()
		}
		for size := 0; size <= capacity-4; size += 7 {
			payload := bytes.Repeat([]byte{byte(size)}, size)
			require.NoError(t, r.tryPush(payload), "shift %d size %d", shift, size)
			got := popBytes(t, r)
			require.True(t, bytes.Equal(payload, got), "shift %d size %d", shift, size)

			require.Equal(t, uint32(0), r.hdr.head%4)
			require.Equal(t, uint32(0), r.hdr.tail%4)
			require.Equal(t, uint32(0), r.used())
		}
	}
}

func TestRingUsedNeverExceedsCapacity(t *testing.T) {
	r := testRing(t, 128)
	rng := rand.New(rand.NewSource(1))

	var queue [][]byte
	for i := 0; i < 10000; i++ {
		if rng.Intn(2) == 0 {
			payload := make([]byte, rng.Intn(64))
			rng.Read(payload)
			if err := r.tryPush(payload); err == nil {
				queue = append(queue, payload)
			}
		} else if len(queue) > 0 {
			got := popBytes(t, r)
			require.Equal(t, queue[0], got)
			queue = queue[1:]
		}
		require.LessOrEqual(t, r.used(), uint32(128))
		require.Equal(t, uint32(0), r.used()%4)
	}
}

func TestRingPopTimeout(t *testing.T) {
	r := testRing(t, 64)

	start := time.Now()
	_, err := r.pop(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, uint32(0), r.used())
}

func TestRingPushTimeout(t *testing.T) {
	r := testRing(t, 32)
	require.NoError(t, r.tryPush(bytes.Repeat([]byte("f"), 28))) // full

	head, tail, used := r.hdr.head, r.hdr.tail, r.used()
	start := time.Now()
	err := r.push(bytes.Repeat([]byte("g"), 20), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	assert.Equal(t, head, r.hdr.head)
	assert.Equal(t, tail, r.hdr.tail)
	assert.Equal(t, used, r.used())
}

func TestRingBlockingProducerConsumer(t *testing.T) {
	// A small ring forces constant backpressure, exercising both the
	// empty->non-empty wake and the need drain.
	r := testRing(t, 64)
	rng := rand.New(rand.NewSource(2))

	const count = 2000
	msgs := make([][]byte, count)
	for i := range msgs {
		msgs[i] = make([]byte, rng.Intn(40))
		rng.Read(msgs[i])
	}

	errc := make(chan error, 1)
	gopool.Go(func() {
		for _, m := range msgs {
			if err := r.push(m, -1); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	})

	for i, want := range msgs {
		f, err := r.pop(10 * time.Second)
		require.NoError(t, err, "message %d", i)
		require.True(t, bytes.Equal(want, f.Bytes()), "message %d", i)
		f.Release()
	}
	require.NoError(t, <-errc)
	assert.Equal(t, uint32(0), r.used())
}

func TestRingPopUnblocksOnSinglePush(t *testing.T) {
	r := testRing(t, 64)

	got := make(chan []byte, 1)
	gopool.Go(func() {
		f, err := r.pop(10 * time.Second)
		if err != nil {
			got <- nil
			return
		}
		b := f.Bytes()
		f.Release()
		got <- b
	})

	time.Sleep(10 * time.Millisecond) // let the consumer park
	require.NoError(t, r.tryPush([]byte("wake")))

	select {
	case b := <-got:
		assert.Equal(t, []byte("wake"), b)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer not woken by push")
	}
}

func TestRingCloseWakesPop(t *testing.T) {
	r, closed := closableRing(64)

	errc := make(chan error, 1)
	gopool.Go(func() {
		_, err := r.pop(-1)
		errc <- err
	})

	time.Sleep(10 * time.Millisecond)
	closed.Store(true)
	r.wakeAll()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pop not unblocked by close")
	}
}

func TestRingCloseWakesPush(t *testing.T) {
	r, closed := closableRing(32)
	require.NoError(t, r.tryPush(bytes.Repeat([]byte("f"), 28)))

	errc := make(chan error, 1)
	gopool.Go(func() {
		errc <- r.push(bytes.Repeat([]byte("g"), 20), -1)
	})

	time.Sleep(10 * time.Millisecond)
	closed.Store(true)
	r.wakeAll()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("push not unblocked by close")
	}
}

func TestFrameDoubleRelease(t *testing.T) {
	r := testRing(t, 64)
	require.NoError(t, r.tryPush([]byte("once")))

	f, err := r.tryPop()
	require.NoError(t, err)
	f.Release()
	f.Release() // no-op
	assert.Equal(t, uint32(0), r.used())
}

func TestFrameAppendTo(t *testing.T) {
	r := testRing(t, 64)
	require.NoError(t, r.tryPush([]byte("tail")))

	f, err := r.tryPop()
	require.NoError(t, err)
	defer f.Release()
	assert.Equal(t, []byte("head-tail"), f.AppendTo([]byte("head-")))
}

func TestAlign4(t *testing.T) {
	cases := map[uint32]uint32{0: 0, 1: 4, 2: 4, 3: 4, 4: 4, 5: 8, 7: 8, 8: 8, 100: 100, 101: 104}
	for in, want := range cases {
		assert.Equal(t, want, align4(in), "align4(%d)", in)
	}
}
