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
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/starwing/kaze/shmem"
	"github.com/starwing/kaze/waitaddr"
)

// Role says which end of a channel this process holds.
type Role uint8

const (
	// Sidecar created the region; it writes netside and reads hostside.
	Sidecar Role = iota + 1
	// Host attached to an existing region; it writes hostside and reads
	// netside.
	Host
)

func (r Role) String() string {
	switch r {
	case Sidecar:
		return "sidecar"
	case Host:
		return "host"
	}
	return "unknown"
}

// NoTimeout passed to PushUntil/PopUntil blocks without bound, like
// Push/Pop.
const NoTimeout = waitaddr.NoTimeout

const defaultFileMode = 0o666

type options struct {
	mode uint32
}

// Option configures Create.
type Option func(*options)

// WithFileMode overrides the permission bits of the backing shared-memory
// object on POSIX systems. The default is 0666. Ignored on Windows.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) { o.mode = uint32(mode.Perm()) }
}

// Channel is one process's view of a kaze channel. The two directions are
// independent SPSC queues: at most one goroutine may push and one may pop at
// a time, pushing and popping concurrently is fine.
type Channel struct {
	m     *shmem.Mapping
	hdr   *regionHeader
	role  Role
	token uint32 // our value in the role's PID word

	netside  ring // sidecar -> host
	hostside ring // host -> sidecar

	localClosed atomic.Bool
	sawHost     atomic.Bool
}

// Create makes a named channel with the given ring capacities in bytes,
// both multiples of 4 and at least 8, and maps it as the sidecar. ident is an
// opaque tag stored in the region header for the host to read; DefaultIdent
// derives one from the name. Fails with ErrExist if the name is taken.
func Create(name string, ident uint32, netsize, hostsize int, opts ...Option) (*Channel, error) {
	if !validCapacity(netsize) || !validCapacity(hostsize) {
		return nil, fmt.Errorf("kaze: ring capacity must be a multiple of 4 and at least 8, got %d/%d",
			netsize, hostsize)
	}
	o := options{mode: defaultFileMode}
	for _, opt := range opts {
		opt(&o)
	}

	total := regionSize(uint32(netsize), uint32(hostsize))
	if total != int(uint32(total)) {
		return nil, fmt.Errorf("kaze: region size %d overflows the 32-bit header", total)
	}
	m, err := shmem.Create(name, total, o.mode)
	if err != nil {
		return nil, err
	}

	data := m.Bytes()
	hdr := (*regionHeader)(unsafe.Pointer(&data[0]))
	hdr.totalSize = uint32(total)
	hdr.sidecarIdent = ident
	hdr.netsideSize = uint32(netsize)
	hdr.hostsideSize = uint32(hostsize)
	atomic.StoreUint32(&hdr.hostPID, 0)

	c := &Channel{m: m, hdr: hdr, role: Sidecar, token: uint32(os.Getpid())}
	c.netside, c.hostside = carve(data, hdr, true, c.isClosed)

	// Publish last: attachers treat sidecar_pid == 0 as "not initialized".
	atomic.StoreUint32(&hdr.sidecarPID, c.token)
	return c, nil
}

// Attach maps an existing named channel as the host. At most one host may be
// attached at a time; a second concurrent Attach gets ErrBusy. ErrCorrupt
// means the region does not match its own header, ErrNotExist that no such
// channel exists.
func Attach(name string) (*Channel, error) {
	m, err := shmem.Open(name)
	if err != nil {
		return nil, err
	}
	data := m.Bytes()
	hdr, err := validateRegion(data)
	if err != nil {
		m.Close()
		return nil, err
	}

	token := uint32(os.Getpid())
	if !atomic.CompareAndSwapUint32(&hdr.hostPID, 0, token) {
		m.Close()
		return nil, ErrBusy
	}

	c := &Channel{m: m, hdr: hdr, role: Host, token: token}
	c.sawHost.Store(true)
	c.netside, c.hostside = carve(data[:hdr.totalSize], hdr, false, c.isClosed)
	return c, nil
}

// Unlink removes the channel name. Existing mappings keep working; no new
// Attach can find it. Normally the sidecar's Close does this.
func Unlink(name string) error {
	return shmem.Unlink(name)
}

// CleanupHost clears a stale host slot, e.g. after a host crashed without
// detaching, so a successor can attach. It touches nothing but the host PID
// word.
func CleanupHost(name string) error {
	m, err := shmem.Open(name)
	if err != nil {
		return err
	}
	defer m.Close()
	hdr, err := validateRegion(m.Bytes())
	if err != nil {
		return err
	}
	atomic.StoreUint32(&hdr.hostPID, 0)
	return nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.m.Name() }

// Ident returns the creator-chosen identifier from the region header.
func (c *Channel) Ident() uint32 { return c.hdr.sidecarIdent }

// Role returns which end of the channel this instance holds.
func (c *Channel) Role() Role { return c.role }

// isClosed is the predicate blocking operations re-check between waits.
// Local close and a vanished creator are terminal; a detached host only
// blocks the sidecar until a successor attaches.
func (c *Channel) isClosed() bool {
	if c.localClosed.Load() {
		return true
	}
	if atomic.LoadUint32(&c.hdr.sidecarPID) == 0 {
		return true
	}
	if atomic.LoadUint32(&c.hdr.hostPID) != 0 {
		c.sawHost.Store(true)
		return false
	}
	return c.sawHost.Load()
}

func (c *Channel) sendRing() *ring {
	if c.role == Sidecar {
		return &c.netside
	}
	return &c.hostside
}

func (c *Channel) recvRing() *ring {
	if c.role == Sidecar {
		return &c.hostside
	}
	return &c.netside
}

// TryPush enqueues b without blocking. ErrWouldBlock if the ring lacks
// space, ErrTooBig if b can never fit, ErrClosed after close.
func (c *Channel) TryPush(b []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.sendRing().tryPush(b)
}

// Push enqueues b, blocking while the ring is full until the consumer frees
// enough space or the channel closes.
func (c *Channel) Push(b []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.sendRing().push(b, waitaddr.NoTimeout)
}

// PushUntil is Push bounded by a timeout; ErrTimeout when it expires with
// the queue state unchanged. A negative timeout means no bound.
func (c *Channel) PushUntil(b []byte, timeout time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.sendRing().push(b, timeout)
}

// PushString enqueues the bytes of s without copying it first.
func (c *Channel) PushString(s string) error {
	if len(s) == 0 {
		return c.Push(nil)
	}
	return c.Push(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// TryPop dequeues the next frame without blocking; ErrWouldBlock when the
// ring is empty. The frame must be released.
func (c *Channel) TryPop() (Frame, error) {
	if c.isClosed() {
		return Frame{}, ErrClosed
	}
	return c.recvRing().tryPop()
}

// Pop dequeues the next frame, blocking while the ring is empty. The frame
// must be released.
func (c *Channel) Pop() (Frame, error) {
	if c.isClosed() {
		return Frame{}, ErrClosed
	}
	return c.recvRing().pop(waitaddr.NoTimeout)
}

// PopUntil is Pop bounded by a timeout; ErrTimeout when it expires. A
// negative timeout means no bound.
func (c *Channel) PopUntil(timeout time.Duration) (Frame, error) {
	if c.isClosed() {
		return Frame{}, ErrClosed
	}
	return c.recvRing().pop(timeout)
}

// PopBytes pops the next frame and returns its payload as a fresh slice,
// releasing the frame before returning.
func (c *Channel) PopBytes() ([]byte, error) {
	f, err := c.Pop()
	if err != nil {
		return nil, err
	}
	b := f.Bytes()
	f.Release()
	return b, nil
}

// Stats is a point-in-time snapshot of both rings' fill levels.
type Stats struct {
	NetsideUsed  uint32
	NetsideCap   uint32
	HostsideUsed uint32
	HostsideCap  uint32
}

// Stats reports the current fill of both directions. Values are racy by
// nature; use them for monitoring, not flow decisions.
func (c *Channel) Stats() Stats {
	return Stats{
		NetsideUsed:  c.netside.used(),
		NetsideCap:   c.netside.cap(),
		HostsideUsed: c.hostside.used(),
		HostsideCap:  c.hostside.cap(),
	}
}

// Close detaches from the channel: it clears this side's PID word so the
// peer observes the closure, wakes every parked waiter on both rings, and
// unmaps the region. The sidecar additionally unlinks the name. Close must
// not race Push/Pop calls on this same instance; waking the peer's pending
// operations is the point, waking our own is the caller's job to avoid.
func (c *Channel) Close() error {
	if c.localClosed.Swap(true) {
		return nil
	}
	switch c.role {
	case Sidecar:
		atomic.CompareAndSwapUint32(&c.hdr.sidecarPID, c.token, 0)
	case Host:
		atomic.CompareAndSwapUint32(&c.hdr.hostPID, c.token, 0)
	}
	c.netside.wakeAll()
	c.hostside.wakeAll()

	name := c.m.Name()
	err := c.m.Close()
	if c.role == Sidecar {
		if uerr := shmem.Unlink(name); uerr != nil && uerr != shmem.ErrNotExist && err == nil {
			err = uerr
		}
	}
	return err
}
