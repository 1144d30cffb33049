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
	"time"

	"github.com/eclesh/welford"
	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/pipe"
	"github.com/facebook/badvpn-go/reactor"
)

// Dest is a per-destination DataProto transmit endpoint: it
// multiplexes local-source flows onto a shared peer sink, drives
// outbound keepalives, patches the RECEIVING_KEEPALIVES flag into
// every outgoing header, and tracks inbound liveness.
type Dest struct {
	reactor  *reactor.Reactor
	frameMTU int
	handler  func(up bool)

	pg           *reactor.PendingGroup
	keepaliveJob *reactor.Job

	notifier  *pipe.Notifier
	monitor   *pipe.InactivityMonitor
	queue     *pipe.FairQueue
	kaFlow    *pipe.FairQueueFlow
	kaSource  *keepaliveSource
	kaBlocker *pipe.RecvBlocker
	kaBuffer  *pipe.SinglePacketBuffer

	receiveTimer *reactor.Timer

	up          bool
	freeing     bool
	lastArrival time.Time
	jitter      *welford.Stats
}

// NewDest wires a Dest feeding output. output must support Cancel and
// have MTU >= MaxOverhead + frame_mtu for some frame_mtu >= 0; handler
// is called at most once per Received/timeout call with the new up
// value whenever it changes.
func NewDest(r *reactor.Reactor, fromID uint16, output iface.PacketPassInterface, keepaliveInterval, toleranceInterval time.Duration, handler func(up bool)) *Dest {
	if !output.SupportsCancel() {
		panic("dataproto: NewDest: output must support Cancel")
	}
	if output.MTU() < MaxOverhead {
		panic("dataproto: NewDest: output MTU smaller than MaxOverhead")
	}

	d := &Dest{
		reactor:  r,
		frameMTU: output.MTU() - MaxOverhead,
		handler:  handler,
		pg:       r.NewPendingGroup(),
		jitter:   welford.New(),
	}

	d.notifier = pipe.NewNotifier(output, d.patchFlags)
	d.monitor = pipe.NewInactivityMonitor(r, d.notifier, keepaliveInterval, d.monitorFired)
	d.queue = pipe.NewFairQueue(d.monitor)

	d.kaFlow = d.queue.NewFlow()
	d.kaSource = newKeepaliveSource(fromID)
	d.kaBlocker = pipe.NewRecvBlocker(d.kaSource)
	d.kaBuffer = pipe.NewSinglePacketBuffer(d.kaBlocker, d.kaFlow)

	d.receiveTimer = r.NewTimer(toleranceInterval, d.receiveTimeout)

	// Prime the first keepalive immediately rather than waiting a
	// full keepalive_interval for the inactivity monitor to fire.
	// AllowOne is idempotent with a concurrent monitor fire.
	d.keepaliveJob = d.pg.NewJob(d.sendKeepalive)
	d.keepaliveJob.Set()

	return d
}

// FrameMTU is the maximum link-layer frame this destination's sink
// can carry once DataProto/overhead has been reserved.
func (d *Dest) FrameMTU() int { return d.frameMTU }

// Up reports the current liveness state.
func (d *Dest) Up() bool { return d.up }

// KeepaliveJitter returns the running standard deviation, in
// nanoseconds, of inter-arrival time between validated incoming
// datagrams from this peer. Zero until at least two datagrams have
// been observed. Reported as keepalive_jitter_ns in /status.
func (d *Dest) KeepaliveJitter() float64 { return d.jitter.Stddev() }

// LastReceived is the time of the last validated incoming datagram
// from this peer's Received call, or the zero Time if none has
// arrived yet. Exposed for status reporting (badvpnctl status).
func (d *Dest) LastReceived() time.Time { return d.lastArrival }

// QueueDepth reports how many flows currently have a packet queued on
// this destination's outbound fair queue, for status reporting.
func (d *Dest) QueueDepth() int { return d.queue.Len() }

// NewFlow creates a new outbound flow multiplexed onto this
// destination's shared sink. Must not be called once PrepareFree has
// been invoked.
func (d *Dest) NewFlow() *pipe.FairQueueFlow {
	if d.freeing {
		panic("dataproto: Dest.NewFlow after PrepareFree")
	}
	return d.queue.NewFlow()
}

// Received is called once per validated incoming datagram from this
// peer, decoded elsewhere (e.g. an SPProto decoder). peerReceiving
// reports the RECEIVING_KEEPALIVES bit of that datagram's header
//.
func (d *Dest) Received(peerReceiving bool) {
	if d.freeing {
		panic("dataproto: Dest.Received after PrepareFree")
	}
	prevUp := d.up
	d.receiveTimer.Reset()

	now := time.Now()
	if !d.lastArrival.IsZero() {
		d.jitter.Add(float64(now.Sub(d.lastArrival)))
	}
	d.lastArrival = now

	if !peerReceiving {
		d.up = false
		d.sendKeepalive()
	} else {
		d.up = true
	}

	if d.up != prevUp && d.handler != nil {
		d.handler(d.up)
	}
}

func (d *Dest) receiveTimeout() {
	prevUp := d.up
	d.up = false
	if d.up != prevUp && d.handler != nil {
		d.handler(d.up)
	}
}

func (d *Dest) sendKeepalive() {
	d.kaBlocker.AllowOne()
}

func (d *Dest) monitorFired() {
	d.sendKeepalive()
}

// patchFlags is the pipe.Notifier hook: it sets or clears
// FlagReceivingKeepalives on every outgoing packet (keepalive or not)
// according to whether the tolerance timer is currently armed, i.e.
// whether we have recently heard from the peer. Applied to every
// packet, keepalive or not.
func (d *Dest) patchFlags(data []byte) {
	PatchReceivingKeepalives(data, d.receiveTimer.Active())
}

// PrepareFree arms the destination for teardown: the fair queue
// starts releasing flows without waiting for their Send to complete,
// and no further NewFlow/Received calls are permitted.
func (d *Dest) PrepareFree() {
	d.queue.PrepareFree()
	d.freeing = true
}

// Free tears the pipeline down in reverse order of construction. Call
// only after PrepareFree and after every attached LocalSource has
// detached.
func (d *Dest) Free() {
	d.receiveTimer.Cancel()
	d.monitor.Stop()
	d.kaFlow.Release()
	d.pg.FreeAll()
}
