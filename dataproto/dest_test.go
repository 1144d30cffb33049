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
	"testing"
	"time"

	"github.com/facebook/badvpn-go/reactor"
	"github.com/stretchr/testify/require"
)

// fakeCancelSink is a trivial PacketPassInterface test double
// supporting Cancel, sized for a small frame_mtu on top of
// MaxOverhead, used by every Dest test in this file.
type fakeCancelSink struct {
	mtu      int
	received [][]byte
	doneFn   func()
}

func newFakeCancelSink(mtu int) *fakeCancelSink { return &fakeCancelSink{mtu: mtu} }
func (s *fakeCancelSink) MTU() int                { return s.mtu }
func (s *fakeCancelSink) SetDoneHandler(f func()) { s.doneFn = f }
func (s *fakeCancelSink) SupportsCancel() bool    { return true }
func (s *fakeCancelSink) Cancel()                 {}
func (s *fakeCancelSink) Send(data []byte) {
	s.received = append(s.received, append([]byte(nil), data...))
	s.doneFn()
}

func newTestDest(t *testing.T, handler func(bool)) (*Dest, *fakeCancelSink) {
	t.Helper()
	r, err := reactor.New()
	require.NoError(t, err)
	sink := newFakeCancelSink(MaxOverhead + 64)
	d := NewDest(r, 5, sink, time.Second, 3*time.Second, handler)
	// Consume the init-time "prime the first keepalive now" job
	// directly: this test drives Dest's state machine without running
	// the reactor's own dispatch loop.
	d.sendKeepalive()
	sink.received = nil
	return d, sink
}

func TestDestReceivedTrueFirstTimeEmitsUpOnce(t *testing.T) {
	var events []bool
	d, _ := newTestDest(t, func(up bool) { events = append(events, up) })

	d.Received(true)
	d.Received(true)
	d.Received(true)

	require.Equal(t, []bool{true}, events)
	require.True(t, d.Up())
}

func TestDestReceiveTimeoutAfterUpEmitsDownOnce(t *testing.T) {
	var events []bool
	d, _ := newTestDest(t, func(up bool) { events = append(events, up) })

	d.Received(true)
	require.Equal(t, []bool{true}, events)

	// Simulate the tolerance timer firing after silence, without
	// waiting real wall-clock time.
	d.receiveTimeout()

	require.Equal(t, []bool{true, false}, events)
	require.False(t, d.Up())
}

func TestDestReceivedFalseWhileUpEmitsDownAndKeepalive(t *testing.T) {
	var events []bool
	d, sink := newTestDest(t, func(up bool) { events = append(events, up) })

	d.Received(true)
	require.Equal(t, []bool{true}, events)
	require.Empty(t, sink.received)

	d.Received(false)

	require.Equal(t, []bool{true, false}, events)
	require.False(t, d.Up())
	require.Len(t, sink.received, 1, "received(false) must trigger exactly one extra keepalive datagram")
}

func TestDestPatchesReceivingKeepalivesFlag(t *testing.T) {
	d, sink := newTestDest(t, nil)

	// No prior Received(true): the tolerance timer is not armed, so
	// the flag must be clear.
	d.sendKeepalive()
	require.Len(t, sink.received, 1)
	require.Equal(t, byte(0), sink.received[0][0]&FlagReceivingKeepalives)

	d.Received(true)
	sink.received = nil
	d.sendKeepalive()
	require.Len(t, sink.received, 1)
	require.NotEqual(t, byte(0), sink.received[0][0]&FlagReceivingKeepalives,
		"flag must be set on every outgoing packet while we've recently heard from the peer, keepalive or not")
}

func TestDestPrepareFreeRefusesNewFlow(t *testing.T) {
	d, _ := newTestDest(t, nil)
	d.PrepareFree()
	require.Panics(t, func() { d.NewFlow() }, "NewFlow after PrepareFree must be refused")
}
