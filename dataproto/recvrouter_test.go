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

	"github.com/stretchr/testify/require"
)

type fakeFrameSink struct {
	mtu      int
	received [][]byte
	doneFn   func()
}

func (s *fakeFrameSink) MTU() int                { return s.mtu }
func (s *fakeFrameSink) SetDoneHandler(f func()) { s.doneFn = f }
func (s *fakeFrameSink) SupportsCancel() bool    { return false }
func (s *fakeFrameSink) Cancel()                 { panic("fakeFrameSink: Cancel not supported") }
func (s *fakeFrameSink) Send(data []byte) {
	s.received = append(s.received, append([]byte(nil), data...))
	s.doneFn()
}

func TestRecvRouterForwardsUnicastPayload(t *testing.T) {
	sink := &fakeFrameSink{mtu: 64}
	var liveness []bool
	r := NewRecvRouter(sink, func(up bool) { liveness = append(liveness, up) })

	var doneCount int
	r.SetDoneHandler(func() { doneCount++ })

	buf := EncodeHeader(nil, Header{Flags: FlagReceivingKeepalives, FromID: 5, NumPeerIDs: 1, DestID: 9})
	buf = append(buf, []byte("HELLO")...)
	r.Send(buf)

	require.Equal(t, [][]byte{[]byte("HELLO")}, sink.received)
	require.Equal(t, []bool{true}, liveness)
	require.Equal(t, 1, doneCount)
}

func TestRecvRouterSwallowsKeepalive(t *testing.T) {
	sink := &fakeFrameSink{mtu: 64}
	var liveness []bool
	r := NewRecvRouter(sink, func(up bool) { liveness = append(liveness, up) })

	var doneCount int
	r.SetDoneHandler(func() { doneCount++ })

	buf := EncodeHeader(nil, Header{Flags: 0, FromID: 5, NumPeerIDs: 0})
	r.Send(buf)

	require.Nil(t, sink.received)
	require.Equal(t, []bool{false}, liveness)
	require.Equal(t, 1, doneCount)
}

func TestRecvRouterDropsMalformedHeader(t *testing.T) {
	sink := &fakeFrameSink{mtu: 64}
	r := NewRecvRouter(sink, nil)

	var doneCount int
	r.SetDoneHandler(func() { doneCount++ })

	r.Send([]byte{1, 2})

	require.Nil(t, sink.received)
	require.Equal(t, 1, doneCount)
}

func TestRecvRouterMTUIncludesMaxOverhead(t *testing.T) {
	sink := &fakeFrameSink{mtu: 64}
	r := NewRecvRouter(sink, nil)
	require.Equal(t, 64+MaxOverhead, r.MTU())
}
