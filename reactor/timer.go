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

package reactor

import "time"

// Timer fires a handler once at an absolute deadline. Re-arming an
// expired or active timer is cheap: Schedule moves it between the
// pending heap and the expired list as needed.
//
// Invariant: an active timer is in exactly one of the
// pending heap or the expired list, never both; an inactive timer is
// in neither.
type Timer struct {
	reactor  *Reactor
	handler  func()
	deadline time.Time
	duration time.Duration // default re-arm duration, used by Reset()
	active   bool
	expired  bool
	heapIdx  int // index in reactor.timers, -1 when not in the heap
}

// NewTimer creates an inactive timer with the given default duration.
// Call Schedule or Reset to arm it.
func (r *Reactor) NewTimer(duration time.Duration, handler func()) *Timer {
	return &Timer{reactor: r, handler: handler, duration: duration, heapIdx: -1}
}

// Schedule arms the timer to fire at deadline, removing it from
// whichever set (pending heap or expired list) it currently occupies.
func (t *Timer) Schedule(deadline time.Time) {
	t.reactor.removeTimer(t)
	t.deadline = deadline
	t.expired = false
	t.active = true
	t.reactor.insertPending(t)
}

// Reset re-arms the timer to fire duration from now, using the
// default duration passed to NewTimer.
func (t *Timer) Reset() {
	t.Schedule(t.reactor.now().Add(t.duration))
}

// Cancel deactivates the timer, removing it from either the pending
// heap or the expired list. Safe to call on an inactive timer.
func (t *Timer) Cancel() {
	t.reactor.removeTimer(t)
	t.active = false
	t.expired = false
}

// Active reports whether the timer is armed (pending or already
// expired but not yet dispatched/cancelled).
func (t *Timer) Active() bool {
	return t.active
}

// timerHeap is a container/heap min-heap of *Timer ordered by
// deadline, with insertion order as the tiebreaker so timers with
// equal deadlines fire in the order they were scheduled.
type timerHeap struct {
	items []*Timer
	seq   []uint64 // parallel slice: insertion sequence per item
	next  uint64
}

func (h *timerHeap) Len() int { return len(h.items) }

func (h *timerHeap) Less(i, j int) bool {
	di, dj := h.items[i].deadline, h.items[j].deadline
	if di.Equal(dj) {
		return h.seq[i] < h.seq[j]
	}
	return di.Before(dj)
}

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.seq[i], h.seq[j] = h.seq[j], h.seq[i]
	h.items[i].heapIdx = i
	h.items[j].heapIdx = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIdx = len(h.items)
	h.items = append(h.items, t)
	h.seq = append(h.seq, h.next)
	h.next++
}

func (h *timerHeap) Pop() any {
	n := len(h.items)
	t := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	h.seq = h.seq[:n-1]
	t.heapIdx = -1
	return t
}
