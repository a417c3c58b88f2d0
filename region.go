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
	"sync/atomic"
	"unsafe"
)

/*
 *	Region layout (little-endian, 4-byte aligned, bit-exact across
 *	implementations):
 *
 *	offset  0: region header, 24 bytes
 *	offset 24: netside ring header (20 bytes) + netside data area
 *	        .: hostside ring header (20 bytes) + hostside data area
 *
 *	The netside ring is written by the sidecar and read by the host; the
 *	hostside ring is the reverse.
 */

const regionHeaderSize = 24

// regionHeader is the first thing in the mapping. The PID words double as
// the liveness/closed signal: a side that closes zeroes its own word.
// host_pid == 0 also means "nobody attached yet", which is what attach
// CASes against.
type regionHeader struct {
	totalSize    uint32 // mapping size, validated on attach
	sidecarIdent uint32 // opaque, chosen by the creator
	sidecarPID   uint32 // atomic; 0 once the creator is gone
	hostPID      uint32 // atomic; 0 while no host is attached
	netsideSize  uint32 // netside ring capacity
	hostsideSize uint32 // hostside ring capacity
}

func init() {
	if unsafe.Sizeof(regionHeader{}) != regionHeaderSize {
		panic(fmt.Sprintf("kaze: regionHeader size is %d, expected %d",
			unsafe.Sizeof(regionHeader{}), regionHeaderSize))
	}
}

// regionSize returns the full mapping size for the two capacities. Both are
// multiples of 4, as are the headers, so the total needs no further
// alignment.
func regionSize(netsize, hostsize uint32) int {
	return regionHeaderSize + 2*ringHeaderSize + int(netsize) + int(hostsize)
}

// validCapacity reports whether n works as a ring capacity: positive,
// 4-aligned, and big enough for a frame with a non-empty payload (8 bytes).
func validCapacity(n int) bool {
	return n >= 8 && n%4 == 0 && int64(n) <= int64(^uint32(0)>>1)
}

// carve builds the two ring views over a mapped region. initialize is true
// on the create path only; attachers take the headers as found.
func carve(data []byte, hdr *regionHeader, initialize bool, closed func() bool) (netside, hostside ring) {
	netOff := uint32(regionHeaderSize)
	hostOff := netOff + ringHeaderSize + hdr.netsideSize
	netside = ringAt(data[netOff:hostOff], hdr.netsideSize, initialize, closed)
	hostside = ringAt(data[hostOff:], hdr.hostsideSize, initialize, closed)
	return netside, hostside
}

// validateRegion checks an attached mapping against its own header before
// any ring view is built over it.
func validateRegion(data []byte) (*regionHeader, error) {
	if len(data) < regionHeaderSize {
		return nil, ErrCorrupt
	}
	hdr := (*regionHeader)(unsafe.Pointer(&data[0]))
	// The mapping may be page-rounded past the logical size (Windows
	// sections), never short of it.
	if int(hdr.totalSize) > len(data) {
		return nil, ErrCorrupt
	}
	if regionSize(hdr.netsideSize, hdr.hostsideSize) != int(hdr.totalSize) {
		return nil, ErrCorrupt
	}
	if hdr.netsideSize%4 != 0 || hdr.hostsideSize%4 != 0 {
		return nil, ErrCorrupt
	}
	if atomic.LoadUint32(&hdr.sidecarPID) == 0 {
		return nil, ErrCorrupt
	}
	return hdr, nil
}
