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

import (
	"container/list"

	"github.com/facebook/badvpn-go/iface"
)

// FairQueueFlow is one input endpoint of a FairQueue: a
// PacketPassInterface a producer sends into, which is internally
// forwarded to the queue's shared output in round-robin turn with
// every other currently-queued flow.
type FairQueueFlow struct {
	q          *FairQueue
	doneFn     func()
	queued     bool
	elem       *list.Element // in q.order while queued
	pendingBuf []byte
	released   bool
}

// FairQueue multiplexes N flows onto one output sink. Scheduling is
// round-robin by flow among those currently holding a queued packet: a
// flow becomes queued when it receives a Send and is not already
// queued, and is serviced (one packet, "fairness unit") in the order
// flows first became queued.
type FairQueue struct {
	output      iface.PacketPassInterface
	order       list.List // of *FairQueueFlow, queued flows in arrival order
	sending     *FairQueueFlow
	prepareFree bool
}

// NewFairQueue creates a fair queue feeding output.
func NewFairQueue(output iface.PacketPassInterface) *FairQueue {
	q := &FairQueue{output: output}
	q.order.Init()
	output.SetDoneHandler(q.outputDone)
	return q
}

// NewFlow creates a new input flow attached to the queue.
func (q *FairQueue) NewFlow() *FairQueueFlow {
	return &FairQueueFlow{q: q}
}

// MTU reports the shared output's MTU; every flow must respect it.
func (f *FairQueueFlow) MTU() int { return f.q.output.MTU() }

// SetDoneHandler installs the per-flow done callback, invoked once the
// queue has forwarded this flow's packet to the output and the output
// has completed it.
func (f *FairQueueFlow) SetDoneHandler(done func()) { f.doneFn = done }

// SupportsCancel mirrors the output's cancel support only while this
// flow's packet is the one actually in flight on the output; callers
// should check it right before calling Cancel.
func (f *FairQueueFlow) SupportsCancel() bool {
	return f.q.output.SupportsCancel() && f.q.sending == f
}

// Cancel abandons this flow's in-flight packet. Valid only when this
// flow is the one currently being sent on the shared output.
func (f *FairQueueFlow) Cancel() {
	if f.q.sending != f {
		panic("pipe: FairQueueFlow.Cancel on a flow that is not sending")
	}
	f.q.output.Cancel()
	f.q.sending = nil
}

// Send enqueues data for this flow. The flow becomes queued if it
// was not already; data is retained until the queue forwards it.
func (f *FairQueueFlow) Send(data []byte) {
	f.pendingBuf = data
	if !f.queued {
		f.queued = true
		f.elem = f.q.order.PushBack(f)
	}
	f.q.pump()
}

// Release detaches the flow from the queue. Outside prepare-free mode
// this must only be called once the flow's done has fired (no Send in
// flight); in prepare-free mode the queue releases flows mid-send
// without waiting.3.
func (f *FairQueueFlow) Release() {
	if f.queued && f.elem != nil {
		f.q.order.Remove(f.elem)
		f.elem = nil
		f.queued = false
	}
	if f.q.sending == f {
		if !f.q.prepareFree {
			panic("pipe: Release of a busy flow outside prepare-free mode")
		}
		f.q.sending = nil
	}
	f.released = true
}

// Len reports how many flows currently hold a queued packet on this
// queue, including the one (if any) presently in flight on the
// output. Used for status reporting; not consulted by pump itself.
func (q *FairQueue) Len() int {
	n := q.order.Len()
	if q.sending != nil {
		n++
	}
	return n
}

// PrepareFree puts the queue into a mode where flows may be Released
// while still the one "sending" on the output, without waiting for
// output.done(), the mode dataproto.Dest.PrepareFree arms on its
// outbound queue during teardown.
func (q *FairQueue) PrepareFree() { q.prepareFree = true }

// pump services the head of the queued-flow order if the output is
// currently idle.
func (q *FairQueue) pump() {
	if q.sending != nil {
		return
	}
	front := q.order.Front()
	if front == nil {
		return
	}
	f := front.Value.(*FairQueueFlow)
	q.order.Remove(front)
	f.elem = nil
	f.queued = false
	q.sending = f
	q.output.Send(f.pendingBuf)
}

func (q *FairQueue) outputDone() {
	f := q.sending
	q.sending = nil
	if f != nil && !f.released && f.doneFn != nil {
		f.doneFn()
	}
	q.pump()
}
