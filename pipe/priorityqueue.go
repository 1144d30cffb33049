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

// PriorityQueueFlow is one input of a PriorityQueue, carrying a fixed
// integer priority (lower value services first).
type PriorityQueueFlow struct {
	q        *PriorityQueue
	priority int
	doneFn   func()
	queued   bool
	pending  []byte
}

// PriorityQueue multiplexes flows onto one output with strict
// priority: a lower-priority-number flow is always serviced before
// any higher-numbered one, and flows sharing a priority are serviced
// FIFO among themselves.
type PriorityQueue struct {
	output  iface.PacketPassInterface
	buckets map[int][]*PriorityQueueFlow
	sending *PriorityQueueFlow
}

// NewPriorityQueue creates a priority queue feeding output.
func NewPriorityQueue(output iface.PacketPassInterface) *PriorityQueue {
	q := &PriorityQueue{output: output, buckets: make(map[int][]*PriorityQueueFlow)}
	output.SetDoneHandler(q.outputDone)
	return q
}

// NewFlow creates a new flow at the given priority.
func (q *PriorityQueue) NewFlow(priority int) *PriorityQueueFlow {
	return &PriorityQueueFlow{q: q, priority: priority}
}

func (f *PriorityQueueFlow) MTU() int                   { return f.q.output.MTU() }
func (f *PriorityQueueFlow) SetDoneHandler(done func()) { f.doneFn = done }

func (f *PriorityQueueFlow) Send(data []byte) {
	f.pending = data
	if !f.queued {
		f.queued = true
		f.q.buckets[f.priority] = append(f.q.buckets[f.priority], f)
	}
	f.q.pump()
}

func (q *PriorityQueue) pump() {
	if q.sending != nil {
		return
	}
	best := -1
	for p, flows := range q.buckets {
		if len(flows) == 0 {
			continue
		}
		if best == -1 || p < best {
			best = p
		}
	}
	if best == -1 {
		return
	}
	bucket := q.buckets[best]
	f := bucket[0]
	q.buckets[best] = bucket[1:]
	f.queued = false
	q.sending = f
	q.output.Send(f.pending)
}

func (q *PriorityQueue) outputDone() {
	f := q.sending
	q.sending = nil
	if f != nil && f.doneFn != nil {
		f.doneFn()
	}
	q.pump()
}
