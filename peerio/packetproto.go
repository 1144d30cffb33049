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

package peerio

import (
	"encoding/binary"

	"github.com/facebook/badvpn-go/iface"
)

// PacketProtoHeaderLen is the fixed 16-bit little-endian length
// prefix every PacketProto record carries; records run back-to-back
// on the stream.
const PacketProtoHeaderLen = 2

// PacketProtoMaxPayload is the largest payload a u16 length prefix
// can express.
const PacketProtoMaxPayload = 65535

// packetProtoEncoder is a PacketPassInterface that frames each packet
// handed to it with a 2-byte little-endian length prefix before
// forwarding the combined record to a StreamPassInterface. Because the
// stream side may report partial progress, the encoder keeps sending
// the remainder of the current record across multiple stream-level
// done(n) calls before accepting the next packet.
type packetProtoEncoder struct {
	output iface.StreamPassInterface
	doneFn func()
	mtu    int

	buf    []byte
	offset int
}

func newPacketProtoEncoder(output iface.StreamPassInterface, mtu int) *packetProtoEncoder {
	e := &packetProtoEncoder{output: output, mtu: mtu}
	output.SetDoneHandler(e.streamDone)
	return e
}

func (e *packetProtoEncoder) MTU() int                   { return e.mtu }
func (e *packetProtoEncoder) SetDoneHandler(done func()) { e.doneFn = done }
func (e *packetProtoEncoder) SupportsCancel() bool       { return false }
func (e *packetProtoEncoder) Cancel() {
	panic("peerio: packetProtoEncoder.Cancel: stream output does not support cancellation")
}

func (e *packetProtoEncoder) Send(data []byte) {
	e.buf = append(e.buf[:0], 0, 0)
	binary.LittleEndian.PutUint16(e.buf, uint16(len(data)))
	e.buf = append(e.buf, data...)
	e.offset = 0
	e.writeMore()
}

func (e *packetProtoEncoder) writeMore() {
	e.output.Send(e.buf[e.offset:])
}

func (e *packetProtoEncoder) streamDone(n int) {
	e.offset += n
	if e.offset < len(e.buf) {
		e.writeMore()
		return
	}
	if e.doneFn != nil {
		e.doneFn()
	}
}

// packetProtoDecoder is a PacketRecvInterface that reconstructs whole
// PacketProto records (length prefix + payload) from a
// StreamRecvInterface, which may deliver them in arbitrarily small
// pieces across multiple done(n) calls.
type packetProtoDecoder struct {
	input  iface.StreamRecvInterface
	doneFn func(int)
	mtu    int

	hdr    [PacketProtoHeaderLen]byte
	hdrGot int

	payloadLen int
	out        []byte
	got        int

	onClose func()
}

func newPacketProtoDecoder(input iface.StreamRecvInterface, mtu int, onClose func()) *packetProtoDecoder {
	d := &packetProtoDecoder{input: input, mtu: mtu, onClose: onClose}
	input.SetDoneHandler(d.streamDone)
	return d
}

func (d *packetProtoDecoder) MTU() int                      { return d.mtu }
func (d *packetProtoDecoder) SetDoneHandler(done func(int)) { d.doneFn = done }

func (d *packetProtoDecoder) Recv(buf []byte) {
	d.out = buf
	d.got = 0
	d.hdrGot = 0
	d.payloadLen = -1
	d.readHeader()
}

func (d *packetProtoDecoder) readHeader() {
	d.input.Recv(d.hdr[d.hdrGot:])
}

func (d *packetProtoDecoder) readPayload() {
	d.input.Recv(d.out[d.got:d.payloadLen])
}

func (d *packetProtoDecoder) streamDone(n int) {
	if n == 0 {
		if d.onClose != nil {
			d.onClose()
		}
		return
	}
	if d.payloadLen < 0 {
		d.hdrGot += n
		if d.hdrGot < PacketProtoHeaderLen {
			d.readHeader()
			return
		}
		d.payloadLen = int(binary.LittleEndian.Uint16(d.hdr[:]))
		if d.payloadLen == 0 {
			d.finish()
			return
		}
		d.readPayload()
		return
	}
	d.got += n
	if d.got < d.payloadLen {
		d.readPayload()
		return
	}
	d.finish()
}

func (d *packetProtoDecoder) finish() {
	n := d.payloadLen
	if d.doneFn != nil {
		d.doneFn(n)
	}
}
