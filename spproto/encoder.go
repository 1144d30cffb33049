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

package spproto

import (
	"crypto/cipher"

	"github.com/facebook/badvpn-go/iface"
)

// Encoder is a PacketPassInterface that seals each packet handed to
// it with AES-128-GCM under a monotonically increasing sequence
// number, forwarding the sealed datagram to output.
type Encoder struct {
	output iface.PacketPassInterface
	doneFn func()

	aead cipher.AEAD
	seq  uint64

	onRotationWarning func()
	warned            bool

	buf []byte
}

// NewEncoder creates an encoder sealing packets of up to
// output.MTU()-OverheadLen bytes under key, forwarding to output.
// onRotationWarning, if non-nil, is called exactly once when the
// sequence counter first crosses RotationWarningThreshold.
func NewEncoder(output iface.PacketPassInterface, key [KeyLen]byte, onRotationWarning func()) *Encoder {
	aead, err := aeadFor(key)
	if err != nil {
		panic(err)
	}
	if output.MTU() < OverheadLen {
		panic("spproto: NewEncoder: output MTU smaller than OverheadLen")
	}
	e := &Encoder{output: output, aead: aead, onRotationWarning: onRotationWarning}
	output.SetDoneHandler(e.outputDone)
	return e
}

func (e *Encoder) MTU() int                   { return e.output.MTU() - OverheadLen }
func (e *Encoder) SetDoneHandler(done func()) { e.doneFn = done }
func (e *Encoder) SupportsCancel() bool       { return e.output.SupportsCancel() }
func (e *Encoder) Cancel()                    { e.output.Cancel() }

// Send seals data under the next sequence number and forwards the
// sealed datagram downstream.
func (e *Encoder) Send(data []byte) {
	seq := e.seq
	e.seq++
	if !e.warned && e.seq >= RotationWarningThreshold {
		e.warned = true
		if e.onRotationWarning != nil {
			e.onRotationWarning()
		}
	}

	var seqBuf [SeqLen]byte
	for i := 0; i < SeqLen; i++ {
		seqBuf[SeqLen-1-i] = byte(seq >> (8 * i))
	}

	e.buf = e.buf[:0]
	e.buf = append(e.buf, seqBuf[:]...)
	e.buf = e.aead.Seal(e.buf, nonceFor(seq), data, nil)

	e.output.Send(e.buf)
}

func (e *Encoder) outputDone() {
	if e.doneFn != nil {
		e.doneFn()
	}
}
