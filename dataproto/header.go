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

// Package dataproto implements the DataProto VPN dataplane: the
// per-destination transmit/receive pipeline that carries link-layer
// frames between peers, including keepalive generation, liveness
// signalling and the peer-id routed fair-queue fan-out.
package dataproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FlagReceivingKeepalives is set on an outgoing header iff we have
// recently heard from the peer (the receive-tolerance timer is
// armed), regardless of whether the packet carrying it is itself a
// keepalive.
const FlagReceivingKeepalives = 1 << 0

// HeaderLen is the fixed portion of the DataProto header: flags (1B),
// from_id (u16 LE), num_peer_ids (u16 LE).
const HeaderLen = 5

// PeerIDLen is the size of one dest_id entry.
const PeerIDLen = 2

// MaxOverhead is the worst case header overhead reserved before a
// frame payload: the fixed header plus one peer id (num_peer_ids is
// always 0 or 1 in this implementation.
const MaxOverhead = HeaderLen + PeerIDLen

// ErrHeaderRejected is returned by DecodeHeader when the header is
// malformed or its num_peer_ids is outside {0, 1}.
var ErrHeaderRejected = errors.New("dataproto: header rejected")

// Header is the decoded form of one DataProto packet header.
// NumPeerIDs is always 0 (keepalive) or 1 (unicast) in this
// implementation.
type Header struct {
	Flags      byte
	FromID     uint16
	NumPeerIDs uint16
	DestID     uint16 // valid iff NumPeerIDs == 1
}

// EncodeHeader appends the wire form of h to dst, returning the
// extended slice. The Flags byte is written as given; callers that
// need RECEIVING_KEEPALIVES patched in place after encoding (the
// common case for Dest's outgoing path) should encode with Flags = 0
// and let pipe.Notifier patch byte 0 later.
func EncodeHeader(dst []byte, h Header) []byte {
	var buf [MaxOverhead]byte
	buf[0] = h.Flags
	binary.LittleEndian.PutUint16(buf[1:3], h.FromID)
	binary.LittleEndian.PutUint16(buf[3:5], h.NumPeerIDs)
	n := HeaderLen
	if h.NumPeerIDs == 1 {
		binary.LittleEndian.PutUint16(buf[5:7], h.DestID)
		n += PeerIDLen
	}
	return append(dst, buf[:n]...)
}

// DecodeHeader parses a DataProto header from the front of b,
// returning the decoded header and the number of bytes consumed
// (header only, not the frame payload that follows).
func DecodeHeader(b []byte) (Header, int, error) {
	if len(b) < HeaderLen {
		return Header{}, 0, fmt.Errorf("%w: short header (%d bytes)", ErrHeaderRejected, len(b))
	}
	h := Header{
		Flags:      b[0],
		FromID:     binary.LittleEndian.Uint16(b[1:3]),
		NumPeerIDs: binary.LittleEndian.Uint16(b[3:5]),
	}
	switch h.NumPeerIDs {
	case 0:
		return h, HeaderLen, nil
	case 1:
		if len(b) < HeaderLen+PeerIDLen {
			return Header{}, 0, fmt.Errorf("%w: short peer id list", ErrHeaderRejected)
		}
		h.DestID = binary.LittleEndian.Uint16(b[HeaderLen : HeaderLen+PeerIDLen])
		return h, HeaderLen + PeerIDLen, nil
	default:
		return Header{}, 0, fmt.Errorf("%w: num_peer_ids %d not 0 or 1", ErrHeaderRejected, h.NumPeerIDs)
	}
}

// PatchReceivingKeepalives sets or clears FlagReceivingKeepalives in
// place on an already-encoded header's first byte. Used by the
// pipe.Notifier hook Dest installs on its outgoing path.
func PatchReceivingKeepalives(data []byte, receiving bool) {
	if len(data) == 0 {
		return
	}
	if receiving {
		data[0] |= FlagReceivingKeepalives
	} else {
		data[0] &^= FlagReceivingKeepalives
	}
}
