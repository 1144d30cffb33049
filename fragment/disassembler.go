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

package fragment

import (
	"time"

	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/reactor"
)

// Disassembler is a PacketPassInterface that splits frames up to
// payloadMTU into one or more FragmentProto chunks, batching chunks
// from successive frames into one carrier datagram up to the output's
// MTU when they fit, and bounding how long a partially-filled datagram
// may sit unflushed by latency. Follows the same
// suspend/resume-on-output-done discipline Assembler uses so that a
// synchronous downstream done can never double-fire this node's own
// done.
type Disassembler struct {
	payloadMTU   int
	carrierMTU   int
	output       iface.PacketPassInterface
	doneFn       func()
	latencyTimer *reactor.Timer

	nextFrameID uint16

	in      []byte
	inPos   int
	inFrame bool // a frame is mid-disassembly (true even for a zero-length frame)
	frameID uint16
	// owedDone is true exactly while the current Send has not yet been
	// acknowledged: a flush triggered by the latency timer outside of
	// an active Send must never fire doneFn, since no Send is
	// outstanding for it to complete.
	owedDone bool

	out []byte // datagram under construction, nil when empty
	// outputBusy is true while a datagram handed to output has not yet
	// been acknowledged. At most one send may be in flight on output,
	// so while it is set every flush attempt (a full datagram, the
	// latency timer, a new frame arriving) holds the next datagram in
	// d.out until outputDone clears it.
	outputBusy bool
}

// NewDisassembler creates a disassembler accepting frames up to
// payloadMTU, producing datagrams up to output.MTU() (the carrier
// MTU). latency bounds how long a partial datagram may wait for more
// frames to batch into it before being flushed on its own.
func NewDisassembler(r *reactor.Reactor, output iface.PacketPassInterface, payloadMTU int, latency time.Duration) *Disassembler {
	d := &Disassembler{
		payloadMTU: payloadMTU,
		carrierMTU: output.MTU(),
		output:     output,
	}
	d.latencyTimer = r.NewTimer(latency, d.flushTimerFired)
	output.SetDoneHandler(d.outputDone)
	return d
}

func (d *Disassembler) MTU() int                   { return d.payloadMTU }
func (d *Disassembler) SetDoneHandler(done func()) { d.doneFn = done }
func (d *Disassembler) SupportsCancel() bool       { return false }
func (d *Disassembler) Cancel() {
	panic("fragment: Disassembler.Cancel: input does not support cancellation")
}

// Send splits one frame into FragmentProto chunks, appending them to
// (or flushing) the datagram under construction, then reports done
// once every byte of the frame has been placed into some out buffer.
func (d *Disassembler) Send(data []byte) {
	d.in = data
	d.inPos = 0
	d.inFrame = true
	d.frameID = d.nextFrameID
	d.nextFrameID++
	d.owedDone = true
	d.process()
}

// process drains d.in into d.out, flushing whenever d.out fills, and
// suspends (returning without firing done) whenever a flush is
// needed. It resumes from outputDone once the in-flight send to
// output completes, continuing exactly where it left off.
func (d *Disassembler) process() {
	for d.inFrame {
		if !d.encodeStep() {
			d.flush()
			return
		}
	}
	// A datagram with no room left for even an empty further chunk is
	// flushed right away rather than waiting on the latency timer;
	// only a genuinely partial datagram waits for more data.
	if len(d.out) > 0 && d.carrierMTU-len(d.out) < HeaderLen {
		d.flush()
		return
	}
	if len(d.out) > 0 {
		d.latencyTimer.Reset()
	}
	if d.owedDone {
		d.owedDone = false
		if d.doneFn != nil {
			d.doneFn()
		}
	}
}

// encodeStep appends at most one chunk of the current frame to d.out.
// It returns false (without having appended anything) when d.out must
// be flushed before any further progress is possible.
func (d *Disassembler) encodeStep() bool {
	space := d.carrierMTU - len(d.out) - HeaderLen
	remaining := len(d.in) - d.inPos
	if space < 0 || (space == 0 && remaining > 0) {
		return false
	}
	chunkLen := remaining
	if chunkLen > space {
		chunkLen = space
	}
	isLast := d.inPos+chunkLen == len(d.in)

	d.out = EncodeChunkHeader(d.out, ChunkHeader{
		FrameID:    d.frameID,
		ChunkStart: uint16(d.inPos),
		ChunkLen:   uint16(chunkLen),
		IsLast:     isLast,
	})
	d.out = append(d.out, d.in[d.inPos:d.inPos+chunkLen]...)
	d.inPos += chunkLen
	if isLast {
		d.in = nil
		d.inFrame = false
	}
	return true
}

// flush hands the datagram under construction to output, whether or
// not it is full. Called when a chunk can no longer fit (from
// process) and when the latency timer expires. While output is still
// busy with the previous datagram this is a no-op; the caller resumes
// from outputDone.
func (d *Disassembler) flush() {
	if len(d.out) == 0 || d.outputBusy {
		return
	}
	out := d.out
	d.out = nil
	d.latencyTimer.Cancel()
	d.outputBusy = true
	d.output.Send(out)
}

func (d *Disassembler) outputDone() {
	d.outputBusy = false
	d.process()
}

func (d *Disassembler) flushTimerFired() {
	d.flush()
}
