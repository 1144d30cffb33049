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

package pipe

import "github.com/facebook/badvpn-go/iface"

// PacketBuffer is a ring of N packet slots decoupling a source from a
// sink: the producer side (driven by source) fills slots, the
// consumer side (driven by sink) drains them. When the ring is empty
// the next Recv-done parks the consumer; when full, the next Send-done
// unparks the producer. N == 0 is a programmer error.
type PacketBuffer struct {
	source iface.PacketRecvInterface
	sink   iface.PacketPassInterface
	mtu    int

	slots    [][]byte
	lens     []int
	head     int // next slot to send from, when count > 0
	tail     int // next slot to recv into, when count < len(slots)
	count    int
	sinkBusy bool
}

// NewPacketBuffer wires source to sink through an N-slot ring.
func NewPacketBuffer(source iface.PacketRecvInterface, sink iface.PacketPassInterface, n int) *PacketBuffer {
	if n <= 0 {
		panic("pipe: PacketBuffer requires n > 0")
	}
	mtu := source.MTU()
	if sink.MTU() > mtu {
		mtu = sink.MTU()
	}
	b := &PacketBuffer{
		source: source,
		sink:   sink,
		mtu:    mtu,
		slots:  make([][]byte, n),
		lens:   make([]int, n),
	}
	for i := range b.slots {
		b.slots[i] = make([]byte, mtu)
	}
	source.SetDoneHandler(b.recvDone)
	sink.SetDoneHandler(b.sendDone)
	b.fillIfRoom()
	return b
}

func (b *PacketBuffer) fillIfRoom() {
	if b.count < len(b.slots) {
		b.source.Recv(b.slots[b.tail])
	}
}

func (b *PacketBuffer) recvDone(n int) {
	b.lens[b.tail] = n
	b.tail = (b.tail + 1) % len(b.slots)
	wasEmpty := b.count == 0
	b.count++
	if wasEmpty && !b.sinkBusy {
		b.drainOne()
	}
	b.fillIfRoom()
}

func (b *PacketBuffer) drainOne() {
	b.sinkBusy = true
	b.sink.Send(b.slots[b.head][:b.lens[b.head]])
}

func (b *PacketBuffer) sendDone() {
	b.sinkBusy = false
	b.head = (b.head + 1) % len(b.slots)
	wasFull := b.count == len(b.slots)
	b.count--
	if b.count > 0 {
		b.drainOne()
	}
	if wasFull {
		b.fillIfRoom()
	}
}
