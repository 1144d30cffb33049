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

// FifoQueueFlow is one input of a FifoQueue.
type FifoQueueFlow struct {
	q          *FifoQueue
	doneFn     func()
	queued     bool
	elem       *list.Element
	pendingBuf []byte
}

// FifoQueue multiplexes N flows onto one output sink with strict
// global FIFO order across all flows (no per-flow fairness weighting,
// unlike FairQueue). Useful for control-plane-ish flows where strict
// arrival order matters more than fairness.
type FifoQueue struct {
	output  iface.PacketPassInterface
	order   list.List
	sending *FifoQueueFlow
}

// NewFifoQueue creates a FIFO queue feeding output.
func NewFifoQueue(output iface.PacketPassInterface) *FifoQueue {
	q := &FifoQueue{output: output}
	q.order.Init()
	output.SetDoneHandler(q.outputDone)
	return q
}

// NewFlow creates a new input flow attached to the queue.
func (q *FifoQueue) NewFlow() *FifoQueueFlow { return &FifoQueueFlow{q: q} }

func (f *FifoQueueFlow) MTU() int                   { return f.q.output.MTU() }
func (f *FifoQueueFlow) SetDoneHandler(done func()) { f.doneFn = done }

func (f *FifoQueueFlow) Send(data []byte) {
	f.pendingBuf = data
	if !f.queued {
		f.queued = true
		f.elem = f.q.order.PushBack(f)
	}
	f.q.pump()
}

func (q *FifoQueue) pump() {
	if q.sending != nil {
		return
	}
	front := q.order.Front()
	if front == nil {
		return
	}
	f := front.Value.(*FifoQueueFlow)
	q.order.Remove(front)
	f.elem = nil
	f.queued = false
	q.sending = f
	q.output.Send(f.pendingBuf)
}

func (q *FifoQueue) outputDone() {
	f := q.sending
	q.sending = nil
	if f != nil && f.doneFn != nil {
		f.doneFn()
	}
	q.pump()
}
