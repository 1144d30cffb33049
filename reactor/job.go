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

import "container/list"

// Job is a zero-latency deferred call: a handler queued onto the
// reactor's single pending-job FIFO that runs on the next drain,
// strictly before any timer or I/O dispatch in the same iteration.
//
// A Job is not safe for concurrent use; it is only ever touched from
// the reactor goroutine.
type Job struct {
	group   *PendingGroup
	handler func()
	elem    *list.Element // element in reactor.pending, nil iff not queued
}

// NewJob creates a job owned by group. handler is invoked with no
// arguments when the job is dispatched. Ownership by a group exists
// only so the group can bulk-unset every job it created when its
// owning node is torn down; insertion order is always the reactor's
// single global FIFO, never per-group.
func (g *PendingGroup) NewJob(handler func()) *Job {
	j := &Job{group: g, handler: handler}
	g.members[j] = struct{}{}
	return j
}

// IsSet reports whether the job is currently queued for dispatch.
func (j *Job) IsSet() bool {
	return j.elem != nil
}

// Set enqueues the job at the back of the reactor's pending FIFO if it
// is not already queued. Re-setting an already-set job is a no-op; it
// does not move to the back of the queue.
func (j *Job) Set() {
	if j.elem != nil {
		return
	}
	j.elem = j.group.reactor.pending.PushBack(j)
}

// Unset removes the job from the queue if present. Safe to call on a
// job that is not set.
func (j *Job) Unset() {
	if j.elem == nil {
		return
	}
	j.group.reactor.pending.Remove(j.elem)
	j.elem = nil
}

// Free unsets the job and releases it from its group. Call this when
// the job itself (not necessarily the whole group) is going away.
func (j *Job) Free() {
	j.Unset()
	delete(j.group.members, j)
}

// PendingGroup is a handle onto the reactor's pending-job FIFO, scoped
// to one node. Every composite node that schedules deferred
// continuations owns a PendingGroup (obtained from its Reactor), and
// must call FreeAll before the node itself is discarded so that no
// stale job can fire against freed state.
type PendingGroup struct {
	reactor *Reactor
	members map[*Job]struct{}
}

func newPendingGroup(r *Reactor) *PendingGroup {
	return &PendingGroup{reactor: r, members: make(map[*Job]struct{})}
}

// FreeAll unsets every job the group owns. It does not invalidate the
// Job values themselves; a node that wants to reuse a *Job after
// FreeAll must not do so across a group's lifetime boundary.
func (g *PendingGroup) FreeAll() {
	for j := range g.members {
		j.Unset()
	}
	g.members = make(map[*Job]struct{})
}
