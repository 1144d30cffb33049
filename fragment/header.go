/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package fragment implements FragmentProto: the sub-layer that
// splits frames too large for one carrier datagram into chunks, and
// reassembles chunks back into frames on the receiving side. It is
// the hardest algorithmic component of the dataplane: a bounded
// per-flow reassembly cache with a monotonic arrival-tick timeout
// and LRU eviction.
package fragment

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the on-wire size of a FragmentProto chunk header:
// u16 frame_id, u16 chunk_start, u16 chunk_len, u8 is_last.
const HeaderLen = 7

// ErrChunkRejected is returned by DecodeChunkHeader when a chunk header
// fails its own bounds checks (not when it is merely rejected later
// by the assembler against a particular slot's state).
var ErrChunkRejected = errors.New("fragment: chunk rejected")

// ChunkHeader is the decoded form of one FragmentProto chunk header.
type ChunkHeader struct {
	FrameID    uint16
	ChunkStart uint16
	ChunkLen   uint16
	IsLast     bool
}

// EncodeChunkHeader appends the wire form of h to dst and returns the
// extended slice.
func EncodeChunkHeader(dst []byte, h ChunkHeader) []byte {
	var buf [HeaderLen]byte
	binary.LittleEndian.PutUint16(buf[0:2], h.FrameID)
	binary.LittleEndian.PutUint16(buf[2:4], h.ChunkStart)
	binary.LittleEndian.PutUint16(buf[4:6], h.ChunkLen)
	if h.IsLast {
		buf[6] = 1
	}
	return append(dst, buf[:]...)
}

// DecodeChunkHeader reads one chunk header from the front of b and
// returns the decoded header. The header always occupies HeaderLen
// bytes; the payload that follows it is not examined.
func DecodeChunkHeader(b []byte) (ChunkHeader, error) {
	if len(b) < HeaderLen {
		return ChunkHeader{}, fmt.Errorf("%w: short header (%d bytes)", ErrChunkRejected, len(b))
	}
	h := ChunkHeader{
		FrameID:    binary.LittleEndian.Uint16(b[0:2]),
		ChunkStart: binary.LittleEndian.Uint16(b[2:4]),
		ChunkLen:   binary.LittleEndian.Uint16(b[4:6]),
	}
	switch b[6] {
	case 0:
		h.IsLast = false
	case 1:
		h.IsLast = true
	default:
		return ChunkHeader{}, fmt.Errorf("%w: is_last field %d not 0 or 1", ErrChunkRejected, b[6])
	}
	return h, nil
}
