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
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/facebook/badvpn-go/iface"
)

// ErrReplayed is returned (and logged at INFO by the caller, never
// fatal) when a decoded packet's
// sequence number was already seen or has fallen outside the replay
// window.
var ErrReplayed = errors.New("spproto: replayed or too-old sequence number")

// ErrAuthFailed is returned when AEAD verification fails (truncated
// packet or bad tag).
var ErrAuthFailed = errors.New("spproto: authentication failed")

// Decoder is a PacketPassInterface that opens each sealed datagram
// handed to it, checks it against a replay window, and forwards the
// recovered plaintext to output — mirroring fragment.Assembler's
// suspend/resume-on-output-done discipline so a synchronous
// downstream done can never double-fire this node's own done.
type Decoder struct {
	output iface.PacketPassInterface
	doneFn func()

	aead   cipher.AEAD
	window ReplayWindow

	onError func(error)

	outputReady bool
	plain       []byte
}

// NewDecoder creates a decoder opening sealed datagrams up to
// input.MTU() under key and forwarding recovered plaintext to output.
// onError, if non-nil, is called (never fatally) for every rejected
// packet: the policy is drop and log, never tear the connection
// down.
func NewDecoder(output iface.PacketPassInterface, key [KeyLen]byte, onError func(error)) *Decoder {
	aead, err := aeadFor(key)
	if err != nil {
		panic(err)
	}
	d := &Decoder{output: output, aead: aead, onError: onError}
	output.SetDoneHandler(d.outputDone)
	return d
}

func (d *Decoder) MTU() int                   { return d.output.MTU() + OverheadLen }
func (d *Decoder) SetDoneHandler(done func()) { d.doneFn = done }
func (d *Decoder) SupportsCancel() bool       { return false }
func (d *Decoder) Cancel() {
	panic("spproto: Decoder.Cancel: input does not support cancellation")
}

// Send hands one sealed datagram to the decoder. If it opens and
// passes the replay check, the plaintext is forwarded to output and
// this node's own done fires once output's done fires; if rejected,
// done fires immediately (the caller is free to send the next
// datagram right away — a dropped packet must never block the
// carrier).
func (d *Decoder) Send(data []byte) {
	plain, err := d.open(data)
	if err != nil {
		if d.onError != nil {
			d.onError(err)
		}
		if d.doneFn != nil {
			d.doneFn()
		}
		return
	}
	d.outputReady = true
	d.plain = plain
	d.output.Send(plain)
}

func (d *Decoder) open(data []byte) ([]byte, error) {
	if len(data) < OverheadLen {
		return nil, fmt.Errorf("%w: short packet (%d bytes)", ErrAuthFailed, len(data))
	}
	seq := binary.BigEndian.Uint64(data[:SeqLen])
	ciphertext := data[SeqLen:]

	plain, err := d.aead.Open(ciphertext[:0], nonceFor(seq), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if !d.window.Accept(seq) {
		return nil, ErrReplayed
	}
	return plain, nil
}

func (d *Decoder) outputDone() {
	d.outputReady = false
	d.plain = nil
	if d.doneFn != nil {
		d.doneFn()
	}
}
