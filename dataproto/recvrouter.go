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

package dataproto

import (
	log "github.com/sirupsen/logrus"

	"github.com/facebook/badvpn-go/iface"
)

// RecvRouter is the receive-side counterpart of LocalSource: it sits
// immediately downstream of whatever reassembles a peer's carrier
// datagrams back into whole DataProto-framed packets (a
// fragment.Assembler for DatagramPeerIO, a PacketProto decoder for
// StreamPeerIO) and terminates the DataProto framing itself. Every
// packet handed to Send is a complete on-wire DataProto packet: a
// header followed by zero or more frame bytes. The router parses the
// header, reports peer_receiving to the owning Dest, and either drops
// a keepalive (num_peer_ids == 0) or forwards the frame payload
// downstream (num_peer_ids == 1).
type RecvRouter struct {
	output   iface.PacketPassInterface
	liveness func(peerReceiving bool)
	doneFn   func()

	forwarding bool
}

// NewRecvRouter wires a RecvRouter forwarding frame payloads to
// output (typically the multiplexed TAP device sink) and reporting
// the RECEIVING_KEEPALIVES bit of every validated packet to liveness
// (typically a Dest's Received method).
func NewRecvRouter(output iface.PacketPassInterface, liveness func(peerReceiving bool)) *RecvRouter {
	r := &RecvRouter{output: output, liveness: liveness}
	output.SetDoneHandler(r.outputDone)
	return r
}

// MTU is the largest complete DataProto packet (header + frame) this
// router accepts, matching the output sink's own frame MTU plus the
// worst-case header overhead.
func (r *RecvRouter) MTU() int { return r.output.MTU() + MaxOverhead }

func (r *RecvRouter) SetDoneHandler(f func()) { r.doneFn = f }

// SupportsCancel mirrors the output sink's own support: a keepalive
// Send never leaves anything in flight to cancel (it completes
// synchronously before Cancel could ever be called), so forwarding
// it through is correct in both cases.
func (r *RecvRouter) SupportsCancel() bool { return r.output.SupportsCancel() }

func (r *RecvRouter) Cancel() {
	if !r.forwarding {
		// Nothing is in flight: the last Send already completed
		// synchronously (a dropped/rejected packet or a keepalive).
		return
	}
	r.output.Cancel()
	r.forwarding = false
}

// Send decodes the DataProto header from the front of data, reports
// liveness, and forwards the remaining frame bytes downstream unless
// this is a keepalive (num_peer_ids == 0), in which case it completes
// immediately without ever touching the output sink.
func (r *RecvRouter) Send(data []byte) {
	h, n, err := DecodeHeader(data)
	if err != nil {
		log.Infof("dataproto: RecvRouter: %v", err)
		r.complete()
		return
	}
	if r.liveness != nil {
		r.liveness(h.Flags&FlagReceivingKeepalives != 0)
	}
	if h.NumPeerIDs == 0 {
		// Keepalive: header only, nothing to forward.
		r.complete()
		return
	}
	r.forwarding = true
	r.output.Send(data[n:])
}

func (r *RecvRouter) outputDone() {
	r.forwarding = false
	if r.doneFn != nil {
		r.doneFn()
	}
}

func (r *RecvRouter) complete() {
	if r.doneFn != nil {
		r.doneFn()
	}
}
