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

// Package pipe implements the composition helpers the dataplane is
// assembled from: single-buffer and ring-buffer couplers, fair/fifo/priority
// queues multiplexing many flows onto one sink, a pass-through
// notifier, an inactivity monitor and a recv blocker. Every node here
// is driven purely by PacketPass/PacketRecv callbacks; none of them
// spawn goroutines or touch a mutex.
package pipe

import "github.com/facebook/badvpn-go/iface"

// SinglePacketBuffer couples a PacketRecvInterface source to a
// PacketPassInterface sink with exactly one packet of buffering: it
// recv's into its own buffer, and once that completes, sends the
// result downstream; once the sink is done, it recv's again. This is
// a lock-step FIFO of depth 1.
type SinglePacketBuffer struct {
	source iface.PacketRecvInterface
	sink   iface.PacketPassInterface
	buf    []byte
}

// NewSinglePacketBuffer wires source to sink and immediately issues
// the first Recv.
func NewSinglePacketBuffer(source iface.PacketRecvInterface, sink iface.PacketPassInterface) *SinglePacketBuffer {
	mtu := source.MTU()
	if sink.MTU() > mtu {
		mtu = sink.MTU()
	}
	b := &SinglePacketBuffer{source: source, sink: sink, buf: make([]byte, mtu)}
	source.SetDoneHandler(b.recvDone)
	sink.SetDoneHandler(b.sendDone)
	b.startRecv()
	return b
}

func (b *SinglePacketBuffer) startRecv() {
	b.source.Recv(b.buf)
}

func (b *SinglePacketBuffer) recvDone(n int) {
	b.sink.Send(b.buf[:n])
}

func (b *SinglePacketBuffer) sendDone() {
	b.startRecv()
}
