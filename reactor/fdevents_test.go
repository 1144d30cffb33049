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
	"golang.org/x/sys/unix"
)

func testSocketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestFDEventsDispatchesBothDirections(t *testing.T) {
	r := newTestReactor(t)
	local, peer := testSocketpair(t)

	var gotRead, gotWrite bool
	ev := r.NewFDEvents(local)
	ev.SetReadable(func(Interest) {
		gotRead = true
		ev.Disarm(Readable)
		if gotWrite {
			r.Quit(0)
		}
	})
	ev.SetWritable(func(Interest) {
		gotWrite = true
		ev.Disarm(Writable)
		if gotRead {
			r.Quit(0)
		}
	})
	ev.Arm(Readable | Writable)

	// A socketpair end with buffer space is immediately writable; a
	// byte from the peer makes it readable too.
	_, err := unix.Write(peer, []byte{1})
	require.NoError(t, err)

	require.Equal(t, 0, r.Run())
	require.True(t, gotRead)
	require.True(t, gotWrite)
}

func TestFDEventsDisarmStopsDispatch(t *testing.T) {
	r := newTestReactor(t)
	local, peer := testSocketpair(t)

	reads := 0
	ev := r.NewFDEvents(local)
	ev.SetReadable(func(Interest) {
		reads++
		ev.Disarm(Readable)
	})
	ev.Arm(Readable)

	_, err := unix.Write(peer, []byte{1})
	require.NoError(t, err)

	// The byte is never drained: if Disarm failed to drop Readable
	// interest, a level-triggered poller would fire again before the
	// quit timer, incrementing reads past 1. The deadline sits far
	// enough out that the first wait observes the readiness.
	quit := r.NewTimer(0, func() { r.Quit(0) })
	quit.Schedule(r.now().Add(50 * time.Millisecond))

	require.Equal(t, 0, r.Run())
	require.Equal(t, 1, reads)
}

func TestFDEventsDetachBeforeClose(t *testing.T) {
	r := newTestReactor(t)
	local, _ := testSocketpair(t)

	ev := r.NewFDEvents(local)
	ev.SetReadable(func(Interest) { t.Fatal("readable after Detach") })
	ev.Arm(Readable)
	ev.Detach()

	quit := r.NewTimer(0, func() { r.Quit(0) })
	quit.Schedule(r.now())
	require.Equal(t, 0, r.Run())
}
