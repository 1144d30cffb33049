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
	"container/list"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/badvpn-go/pipe"
)

// LocalSource is a per-(source_peer, dest_peer) outbound flow: it
// writes the DataProto header into a received TAP frame and forwards
// it through a small ring of pre-formatted buffers into whichever
// Dest it is currently Attach-ed to.
type LocalSource struct {
	device   *Device
	sourceID uint16
	destID   uint16

	connector *pipe.Connector
	ring      list.List // of []byte awaiting connector.Send, depth-bounded by numPackets
	numSlots  int
	sending   bool

	dest *Dest
	flow *pipe.FairQueueFlow
}

// NewLocalSource creates a flow from device routing frames addressed
// to destID, originating as sourceID. numPackets bounds how many
// already-formatted outgoing frames may queue in this source's own
// ring before newly routed frames are dropped (logged, not fatal:
// loss on one peer's queue must not stop the device).
func NewLocalSource(device *Device, sourceID, destID uint16, numPackets int) *LocalSource {
	if numPackets <= 0 {
		panic("dataproto: NewLocalSource: numPackets must be > 0")
	}
	ls := &LocalSource{
		device:    device,
		sourceID:  sourceID,
		destID:    destID,
		connector: pipe.NewConnector(MaxOverhead + device.FrameMTU()),
		numSlots:  numPackets,
	}
	ls.connector.SetDoneHandler(ls.sendDone)
	return ls
}

// Route is called from within Device's routing handler, once per
// destination this received frame is addressed to. more must be true
// on every call but the last for a given frame.
func (ls *LocalSource) Route(more bool) {
	buf, recvLen := ls.device.currentFrame()

	var out []byte
	if more {
		out = make([]byte, MaxOverhead+recvLen)
		copy(out[MaxOverhead:], buf[MaxOverhead:MaxOverhead+recvLen])
	} else {
		out = buf[:MaxOverhead+recvLen]
		ls.device.consumeCurrent()
	}

	// Flags are left zero; Dest's notifier patches
	// RECEIVING_KEEPALIVES in place right before the packet reaches
	// the wire.
	writeUnicastHeaderInPlace(out, ls.sourceID, ls.destID)

	ls.enqueue(out)
}

// writeUnicastHeaderInPlace writes a num_peer_ids=1 DataProto header
// into out[0:MaxOverhead], leaving flags at 0.
func writeUnicastHeaderInPlace(out []byte, sourceID, destID uint16) {
	out[0] = 0
	out[1] = byte(sourceID)
	out[2] = byte(sourceID >> 8)
	out[3] = 1
	out[4] = 0
	out[5] = byte(destID)
	out[6] = byte(destID >> 8)
}

func (ls *LocalSource) enqueue(out []byte) {
	if ls.ring.Len() >= ls.numSlots {
		log.Infof("dataproto: route buffer %d->%d full, dropping frame", ls.sourceID, ls.destID)
		return
	}
	ls.ring.PushBack(out)
	ls.pump()
}

func (ls *LocalSource) pump() {
	if ls.sending || !ls.connector.Connected() {
		return
	}
	front := ls.ring.Front()
	if front == nil {
		return
	}
	ls.ring.Remove(front)
	ls.sending = true
	ls.connector.Send(front.Value.([]byte))
}

func (ls *LocalSource) sendDone() {
	ls.sending = false
	ls.pump()
}

// Attach connects the source to dp, requiring dp.FrameMTU() to be at
// least this source's device's frame MTU.
func (ls *LocalSource) Attach(dp *Dest) {
	if ls.dest != nil {
		panic("dataproto: LocalSource.Attach: already attached")
	}
	if ls.device.FrameMTU() > dp.FrameMTU() {
		panic("dataproto: LocalSource.Attach: source frame_mtu exceeds dest frame_mtu")
	}
	ls.dest = dp
	ls.flow = dp.NewFlow()
	ls.connector.Connect(ls.flow)
	ls.pump()
}

// Detach disconnects the source from its current destination. Valid
// to call even while dp is freeing: PrepareFree lets the fair queue
// release a flow whose packet is still in flight, so in that case the
// flow is released too. Outside that mode a flow with a packet still
// in flight is disconnected without being released.
func (ls *LocalSource) Detach() {
	if ls.dest == nil {
		return
	}
	if !ls.sending || ls.dest.freeing {
		ls.flow.Release()
	}
	ls.connector.Disconnect()
	ls.dest = nil
	ls.flow = nil
}
