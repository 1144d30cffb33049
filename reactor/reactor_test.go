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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	return r
}

// fakeClock lets tests drive the reactor's notion of "now" without
// sleeping real wall-clock time.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestTimersFireInDeadlineOrder(t *testing.T) {
	r := newTestReactor(t)
	clock := &fakeClock{t: time.Unix(0, 0)}
	r.nowFn = clock.now

	var order []int
	t1 := r.NewTimer(0, func() { order = append(order, 1); clock.t = clock.t.Add(time.Hour) })
	t2 := r.NewTimer(0, func() { order = append(order, 2); r.Quit(0) })

	base := clock.t
	t2.Schedule(base.Add(20 * time.Millisecond))
	t1.Schedule(base.Add(10 * time.Millisecond))

	// Advance the fake clock past both deadlines before Run, so the
	// first iteration finds both timers due and must order them by
	// deadline rather than by scheduling order.
	clock.t = base.Add(30 * time.Millisecond)

	code := r.Run()
	require.Equal(t, 0, code)
	require.Equal(t, []int{1, 2}, order)
}

func TestPendingJobsPrecedeTimers(t *testing.T) {
	r := newTestReactor(t)
	clock := &fakeClock{t: time.Now()}
	r.nowFn = clock.now

	var order []string
	group := r.PendingGroup()
	timerFired := r.NewTimer(0, func() {
		order = append(order, "timer")
		r.Quit(0)
	})
	timerFired.Schedule(clock.t) // already due

	job := group.NewJob(func() { order = append(order, "job") })
	job.Set()

	code := r.Run()
	require.Equal(t, 0, code)
	require.Equal(t, []string{"job", "timer"}, order)
}

func TestJobEnqueuedByTimerRunsBeforeNextTimer(t *testing.T) {
	r := newTestReactor(t)
	clock := &fakeClock{t: time.Now()}
	r.nowFn = clock.now

	var order []string
	group := r.PendingGroup()

	var job *Job
	t1 := r.NewTimer(0, func() {
		order = append(order, "timer1")
		job.Set()
	})
	t2 := r.NewTimer(0, func() {
		order = append(order, "timer2")
		r.Quit(0)
	})
	job = group.NewJob(func() { order = append(order, "job") })

	t1.Schedule(clock.t)
	t2.Schedule(clock.t)

	code := r.Run()
	require.Equal(t, 0, code)
	require.Equal(t, []string{"timer1", "job", "timer2"}, order)
}

func TestQuitStopsBeforeFurtherDispatch(t *testing.T) {
	r := newTestReactor(t)
	clock := &fakeClock{t: time.Now()}
	r.nowFn = clock.now

	ran := 0
	t1 := r.NewTimer(0, func() {
		ran++
		r.Quit(42)
	})
	t2 := r.NewTimer(0, func() {
		ran++
	})
	t1.Schedule(clock.t)
	t2.Schedule(clock.t.Add(time.Nanosecond))

	code := r.Run()
	require.Equal(t, 42, code)
	require.Equal(t, 1, ran)
}

func TestCancelTimerRemovesFromBothSets(t *testing.T) {
	r := newTestReactor(t)
	clock := &fakeClock{t: time.Now()}
	r.nowFn = clock.now

	fired := false
	timer := r.NewTimer(0, func() { fired = true })
	timer.Schedule(clock.t)
	timer.Cancel()
	require.False(t, timer.Active())

	quit := r.NewTimer(0, func() { r.Quit(0) })
	quit.Schedule(clock.t)
	r.Run()
	require.False(t, fired)
}

func TestJobSetIsIdempotent(t *testing.T) {
	r := newTestReactor(t)
	group := r.PendingGroup()
	calls := 0
	j := group.NewJob(func() { calls++ })
	j.Set()
	j.Set()
	require.True(t, j.IsSet())

	quit := r.NewTimer(0, func() { r.Quit(0) })
	quit.Schedule(r.now())
	r.Run()
	require.Equal(t, 1, calls)
}

func TestPendingGroupFreeAllUnsetsJobs(t *testing.T) {
	r := newTestReactor(t)
	group := r.NewPendingGroup()
	calls := 0
	j := group.NewJob(func() { calls++ })
	j.Set()
	group.FreeAll()
	require.False(t, j.IsSet())

	quit := r.NewTimer(0, func() { r.Quit(0) })
	quit.Schedule(r.now())
	r.Run()
	require.Equal(t, 0, calls)
}
