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

// Package reactor implements a single-threaded, cooperative event
// loop: a pending-job FIFO, a timer heap and an I/O readiness
// dispatcher, in that strict priority order every iteration. It is the L0
// layer every other package in this module is built on; nothing here
// is safe for concurrent use from more than one goroutine, by design
//.
package reactor

import (
	"container/heap"
	"container/list"
	"time"

	log "github.com/sirupsen/logrus"
)

// Interest is a bitmask of I/O readiness conditions.
type Interest uint8

const (
	// Readable indicates the handle can be read without blocking.
	Readable Interest = 1 << iota
	// Writable indicates the handle can be written without blocking.
	Writable
	// Err is set by the poll backend alongside Readable/Writable to
	// signal an OS-reported error condition; the reactor never
	// interprets it, handlers decide.
	Err
)

// IOHandler is invoked with the reported readiness mask whenever a
// registered file descriptor becomes ready.
type IOHandler func(Interest)

// ioReg is one registered OS-level handle.
type ioReg struct {
	fd      int
	mask    Interest
	handler IOHandler
}

// poller is the OS-specific readiness backend. A single
// implementation (epoll on Linux, poll(2) elsewhere) is selected at
// build time; see poller_linux.go / poller_other.go.
type poller interface {
	add(fd int, mask Interest)
	modify(fd int, mask Interest)
	remove(fd int)
	// wait blocks for up to timeout (negative means forever, zero
	// means don't block) and appends ready (fd, mask) pairs to dst,
	// returning the extended slice.
	wait(timeout time.Duration, dst []readyFD) ([]readyFD, error)
}

type readyFD struct {
	fd   int
	mask Interest
}

// Reactor is the process-scoped event loop. Exactly one Reactor
// drives a given set of nodes; it is created before any node and
// destroyed only after every node using it has been freed.
type Reactor struct {
	timers   timerHeap
	expired  list.List // of *Timer, oldest-fired-first
	pending  list.List // of *Job
	io       map[int]*ioReg
	poll     poller
	quitting bool
	exitCode int
	nowFn    func() time.Time
	group    *PendingGroup
}

// New creates a Reactor with its I/O backend ready but not yet
// running. Call Run to start dispatching.
func New() (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		io:    make(map[int]*ioReg),
		poll:  p,
		nowFn: time.Now,
	}
	heap.Init(&r.timers)
	r.expired.Init()
	r.pending.Init()
	r.group = newPendingGroup(r)
	return r, nil
}

func (r *Reactor) now() time.Time { return r.nowFn() }

// PendingGroup returns the reactor-owned group jobs can be queued
// against. Nodes are free to create their own PendingGroup via
// r.NewPendingGroup() instead, when they need bulk teardown of just
// their own jobs.
func (r *Reactor) PendingGroup() *PendingGroup { return r.group }

// NewPendingGroup creates a fresh group scoped to this reactor.
func (r *Reactor) NewPendingGroup() *PendingGroup { return newPendingGroup(r) }

// RegisterIO registers fd for readiness notifications matching mask.
// handler is invoked with the OS-reported mask (a superset of mask,
// possibly including Err) once per dispatch.
func (r *Reactor) RegisterIO(fd int, mask Interest, handler IOHandler) {
	reg := &ioReg{fd: fd, mask: mask, handler: handler}
	r.io[fd] = reg
	r.poll.add(fd, mask)
}

// ModifyIO changes the interest mask for an already-registered fd.
func (r *Reactor) ModifyIO(fd int, mask Interest) {
	reg, ok := r.io[fd]
	if !ok {
		return
	}
	reg.mask = mask
	r.poll.modify(fd, mask)
}

// UnregisterIO removes fd from the readiness set. Removing the
// registration also invalidates any entry for fd still sitting in the
// last wait's snapshot: the dispatch loop re-checks r.io before every
// handler call, so an fd unregistered mid-iteration never fires
// again.
func (r *Reactor) UnregisterIO(fd int) {
	if _, ok := r.io[fd]; !ok {
		return
	}
	delete(r.io, fd)
	r.poll.remove(fd)
}

// insertPending places an armed timer into the min-heap ordered by
// deadline.
func (r *Reactor) insertPending(t *Timer) {
	heap.Push(&r.timers, t)
}

// removeTimer removes t from whichever structure currently holds it.
func (r *Reactor) removeTimer(t *Timer) {
	if t.heapIdx >= 0 {
		heap.Remove(&r.timers, t.heapIdx)
		return
	}
	if t.expired {
		// t is in the expired list; find and remove it. The expired
		// list is typically tiny (drained every iteration) so linear
		// scan is fine.
		for e := r.expired.Front(); e != nil; e = e.Next() {
			if e.Value.(*Timer) == t {
				r.expired.Remove(e)
				break
			}
		}
	}
}

// Quit requests that Run stop dispatching and return code once the
// handler that called Quit has finished, without starting any further
// I/O dispatch this iteration.
func (r *Reactor) Quit(code int) {
	r.quitting = true
	r.exitCode = code
}

// Run dispatches pending jobs, expired timers and I/O readiness, in
// that strict priority order, blocking between
// iterations for up to the nearest timer deadline, until Quit is
// called. It returns the code passed to Quit.
func (r *Reactor) Run() int {
	var snapshot []readyFD
	for !r.quitting {
		// Step 1: drain pending jobs to exhaustion.
		for !r.quitting && r.drainOnePending() {
		}
		if r.quitting {
			break
		}

		// Step 2: move due timers into the expired list, then drain it.
		now := r.now()
		for r.timers.Len() > 0 && !r.timers.items[0].deadline.After(now) {
			t := heap.Pop(&r.timers).(*Timer)
			t.expired = true
			r.expired.PushBack(t)
		}
		for !r.quitting {
			front := r.expired.Front()
			if front == nil {
				break
			}
			t := front.Value.(*Timer)
			r.expired.Remove(front)
			t.active = false
			t.expired = false
			t.handler()
			// Jobs strictly precede further timer work.
			for !r.quitting && r.drainOnePending() {
			}
		}
		if r.quitting {
			break
		}

		// Step 3: dispatch any readiness already captured by the last
		// wait. Handlers run one at a time, returning to step 1 after
		// each (an I/O handler never runs while jobs remain, and a job
		// enqueued by a handler is guaranteed to run before the next
		// I/O dispatch in the same iteration).
		for i := 0; i < len(snapshot) && !r.quitting; i++ {
			rf := snapshot[i]
			reg, ok := r.io[rf.fd]
			if !ok {
				continue // unregistered mid-iteration; skip
			}
			reg.handler(rf.mask)
			for !r.quitting && r.drainOnePending() {
			}
		}
		snapshot = snapshot[:0]
		if r.quitting {
			break
		}

		// Step 4: wait for the next timer deadline or I/O readiness.
		timeout := r.waitTimeout()
		var err error
		snapshot, err = r.poll.wait(timeout, snapshot)
		if err != nil {
			log.Warningf("reactor: poll wait: %v", err)
			snapshot = snapshot[:0]
		}
	}
	return r.exitCode
}

func (r *Reactor) waitTimeout() time.Duration {
	if r.timers.Len() == 0 {
		return -1
	}
	d := r.timers.items[0].deadline.Sub(r.now())
	if d < 0 {
		d = 0
	}
	return d
}

// drainOnePending pops and invokes the single head job of the
// reactor-wide FIFO, if any. All PendingGroups enqueue onto this same
// FIFO (see job.go); a PendingGroup only tracks which Jobs it owns for
// bulk teardown via FreeAll, it does not maintain a separate queue.
func (r *Reactor) drainOnePending() bool {
	front := r.pending.Front()
	if front == nil {
		return false
	}
	j := front.Value.(*Job)
	r.pending.Remove(front)
	j.elem = nil
	j.handler()
	return true
}
