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

package peerio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingStreamPass captures everything handed to Send as one
// contiguous byte stream, completing done(len(data)) synchronously
// every time (a stream that never reports partial progress).
type recordingStreamPass struct {
	buf    []byte
	doneFn func(int)
}

func (s *recordingStreamPass) SetDoneHandler(f func(int)) { s.doneFn = f }
func (s *recordingStreamPass) Send(data []byte) {
	s.buf = append(s.buf, data...)
	s.doneFn(len(data))
}

// partialStreamPass only accepts up to acceptPerCall bytes of any Send,
// exercising packetProtoEncoder's loop-until-fully-written discipline.
type partialStreamPass struct {
	acceptPerCall int
	buf           []byte
	calls         int
	doneFn        func(int)
}

func (s *partialStreamPass) SetDoneHandler(f func(int)) { s.doneFn = f }
func (s *partialStreamPass) Send(data []byte) {
	s.calls++
	n := len(data)
	if n > s.acceptPerCall {
		n = s.acceptPerCall
	}
	s.buf = append(s.buf, data[:n]...)
	s.doneFn(n)
}

// chunkedStreamRecv delivers at most maxChunk bytes per Recv call from
// a pre-loaded queue, exercising packetProtoDecoder's ability to
// reassemble a record split arbitrarily across done(n) calls.
type chunkedStreamRecv struct {
	queue    []byte
	maxChunk int
	doneFn   func(int)
}

func (s *chunkedStreamRecv) SetDoneHandler(f func(int)) { s.doneFn = f }
func (s *chunkedStreamRecv) Recv(buf []byte) {
	n := len(buf)
	if n > s.maxChunk {
		n = s.maxChunk
	}
	if n > len(s.queue) {
		n = len(s.queue)
	}
	if n == 0 {
		s.doneFn(0) // orderly close: queue exhausted
		return
	}
	copy(buf, s.queue[:n])
	s.queue = s.queue[n:]
	s.doneFn(n)
}

func TestPacketProtoEncoderFramesWithLengthPrefix(t *testing.T) {
	out := &recordingStreamPass{}
	enc := newPacketProtoEncoder(out, 65535)
	var done int
	enc.SetDoneHandler(func() { done++ })

	enc.Send([]byte("hello"))
	require.Equal(t, 1, done)
	require.Equal(t, []byte{5, 0, 'h', 'e', 'l', 'l', 'o'}, out.buf)
}

func TestPacketProtoEncoderLoopsOverPartialWrites(t *testing.T) {
	out := &partialStreamPass{acceptPerCall: 2}
	enc := newPacketProtoEncoder(out, 65535)
	var done int
	enc.SetDoneHandler(func() { done++ })

	enc.Send([]byte("hi"))
	require.Equal(t, 1, done)
	require.Equal(t, []byte{2, 0, 'h', 'i'}, out.buf)
	require.Greater(t, out.calls, 1, "a stream that only accepts part of each write must be driven in a loop")
}

func TestPacketProtoDecoderReassemblesSplitRecord(t *testing.T) {
	encoded := []byte{3, 0, 'f', 'o', 'o'} // length=3 LE, payload "foo"
	src := &chunkedStreamRecv{queue: encoded, maxChunk: 1}
	dec := newPacketProtoDecoder(src, 65535, nil)

	var gotLen int
	dec.SetDoneHandler(func(n int) { gotLen = n })

	buf := make([]byte, 65535)
	dec.Recv(buf)

	require.Equal(t, 3, gotLen)
	require.Equal(t, []byte("foo"), buf[:gotLen])
}

func TestPacketProtoDecoderSignalsOrderlyClose(t *testing.T) {
	src := &chunkedStreamRecv{queue: nil, maxChunk: 1}
	var closed bool
	dec := newPacketProtoDecoder(src, 65535, func() { closed = true })
	dec.SetDoneHandler(func(int) {})

	dec.Recv(make([]byte, 65535))
	require.True(t, closed)
}
