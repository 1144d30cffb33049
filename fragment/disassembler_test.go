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

package fragment_test

import (
	"testing"
	"time"

	"github.com/facebook/badvpn-go/fragment"
	"github.com/facebook/badvpn-go/reactor"
	"github.com/stretchr/testify/require"
)

// decodeDatagram splits a carrier datagram produced by Disassembler
// back into its chunk headers and payloads, for test assertions.
func decodeDatagram(t *testing.T, data []byte) ([]fragment.ChunkHeader, [][]byte) {
	t.Helper()
	var headers []fragment.ChunkHeader
	var payloads [][]byte
	pos := 0
	for pos < len(data) {
		h, err := fragment.DecodeChunkHeader(data[pos:])
		require.NoError(t, err)
		pos += fragment.HeaderLen
		payload := data[pos : pos+int(h.ChunkLen)]
		pos += int(h.ChunkLen)
		headers = append(headers, h)
		payloads = append(payloads, payload)
	}
	return headers, payloads
}

func TestDisassemblerSplitsOversizedFrameAndHonoursBackPressure(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	sink := newFakeSink(17) // carrier MTU 17: 7-byte header + 10 bytes payload per chunk
	sink.hold = true
	d := fragment.NewDisassembler(r, sink, 64, time.Second)
	var done int
	d.SetDoneHandler(func() { done++ })

	frame := make([]byte, 20)
	for i := range frame {
		frame[i] = byte(i)
	}
	d.Send(frame)

	require.Len(t, sink.received, 1, "first 10-byte chunk should already be in flight to the sink")
	require.Equal(t, 0, done)

	sink.release()
	require.Len(t, sink.received, 2, "second chunk flushes immediately once the first is acked")
	require.Equal(t, 0, done, "own done must wait for the second chunk's ack too")

	sink.release()
	require.Equal(t, 1, done)

	_, p1 := decodeDatagram(t, sink.received[0])
	_, p2 := decodeDatagram(t, sink.received[1])
	require.Equal(t, frame, append(append([]byte{}, p1[0]...), p2[0]...))
}

func TestDisassemblerBatchesSmallFramesUntilLatencyFlush(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	sink := newFakeSink(64)
	d := fragment.NewDisassembler(r, sink, 32, 5*time.Millisecond)

	d.Send([]byte("hi"))
	d.Send([]byte("there"))
	require.Empty(t, sink.received, "both small frames should still be batching into one partial datagram")

	quit := r.NewTimer(50*time.Millisecond, func() { r.Quit(0) })
	quit.Reset()
	r.Run()

	require.Len(t, sink.received, 1, "latency timer must flush the still-partial datagram")
	headers, payloads := decodeDatagram(t, sink.received[0])
	require.Len(t, headers, 2)
	require.Equal(t, []byte("hi"), payloads[0])
	require.Equal(t, []byte("there"), payloads[1])
	require.NotEqual(t, headers[0].FrameID, headers[1].FrameID)
	require.True(t, headers[0].IsLast)
	require.True(t, headers[1].IsLast)
}

func TestDisassemblerHoldsNextDatagramWhileOutputBusy(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	sink := newFakeSink(64)
	sink.hold = true
	d := fragment.NewDisassembler(r, sink, 32, 5*time.Millisecond)
	var done int
	d.SetDoneHandler(func() { done++ })

	// Frame A fits with room to spare: its datagram is retained for
	// batching and the frame's own done fires immediately.
	d.Send([]byte("aaaa"))
	require.Equal(t, 1, done)
	require.Empty(t, sink.received)

	// The latency timer flushes A's datagram into the held sink.
	quit := r.NewTimer(20*time.Millisecond, func() { r.Quit(0) })
	quit.Reset()
	r.Run()
	require.Len(t, sink.received, 1, "latency flush must hand A's datagram to the sink")

	// Frame B arrives while A's datagram is still unacknowledged: it
	// batches into a fresh datagram and completes, but that datagram
	// must be held back.
	d.Send([]byte("bbbb"))
	require.Equal(t, 2, done)

	// A further latency expiry while the sink is still busy must not
	// issue a second send over the in-flight one.
	quit2 := r.NewTimer(20*time.Millisecond, func() { r.Quit(0) })
	quit2.Reset()
	r.Run()
	require.Len(t, sink.received, 1, "no second send may be issued while one is in flight")

	// Once A is acknowledged, B's datagram flushes on its own timer.
	sink.release()
	quit3 := r.NewTimer(20*time.Millisecond, func() { r.Quit(0) })
	quit3.Reset()
	r.Run()
	require.Len(t, sink.received, 2)

	_, payloads := decodeDatagram(t, sink.received[1])
	require.Equal(t, []byte("bbbb"), payloads[0])
}

func TestDisassemblerEmptyFrameEmitsZeroLengthLastChunk(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)

	sink := newFakeSink(64)
	d := fragment.NewDisassembler(r, sink, 32, time.Millisecond)

	d.Send(nil)

	quit := r.NewTimer(20*time.Millisecond, func() { r.Quit(0) })
	quit.Reset()
	r.Run()

	require.Len(t, sink.received, 1)
	headers, payloads := decodeDatagram(t, sink.received[0])
	require.Len(t, headers, 1)
	require.True(t, headers[0].IsLast)
	require.Empty(t, payloads[0])
}
