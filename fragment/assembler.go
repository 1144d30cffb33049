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
	"container/list"
	"math"
	"slices"

	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/internal/xhash"
)

type chunkExtent struct {
	start int
	len   int
}

// slot is one frame-reassembly entry in the pool: a fixed-size buffer
// plus the bookkeeping needed to know when the frame it is collecting
// is complete, overlapping, or overrun.
type slot struct {
	id          uint16
	time        uint32
	chunks      []chunkExtent
	sum         int
	length      int // -1 until an is_last chunk has been seen
	lengthSoFar int
	buffer      []byte
	elem        *list.Element // node in the used list, nil when free
}

// Assembler is a PacketPassInterface that reconstructs FragmentProto
// frames from a stream of chunk-bearing carrier datagrams, tolerating
// reordering and loss with a bounded-size cache: a fixed pool of
// slots on a hashed bucket map for by-id lookup and a container/list
// used list ordered oldest-arrival-first for eviction.
type Assembler struct {
	inputMTU  int
	outputMTU int
	numChunks int
	tolerance uint32

	output iface.PacketPassInterface
	doneFn func()

	tick uint32

	free  []*slot
	used  *list.List
	byID  map[uint64][]*slot

	in    []byte
	inPos int

	outputReady bool
	outPacket   []byte
}

// NewAssembler creates an assembler pool of numFrames slots, each
// accepting up to numChunks chunks, feeding output. inputMTU bounds
// the carrier datagrams handed to Send; the reconstructed-frame MTU is
// taken from output.MTU().
func NewAssembler(output iface.PacketPassInterface, inputMTU, numFrames, numChunks int) *Assembler {
	if numFrames <= 0 {
		panic("fragment: NewAssembler: numFrames must be > 0")
	}
	if uint64(numFrames) >= uint64(math.MaxUint32) {
		panic("fragment: NewAssembler: numFrames must be < 2^32-1")
	}
	if numChunks <= 0 {
		panic("fragment: NewAssembler: numChunks must be > 0")
	}

	outputMTU := output.MTU()
	a := &Assembler{
		inputMTU:  inputMTU,
		outputMTU: outputMTU,
		numChunks: numChunks,
		tolerance: uint32(numFrames),
		output:    output,
		used:      list.New(),
		byID:      make(map[uint64][]*slot),
	}
	a.free = make([]*slot, numFrames)
	for i := range a.free {
		a.free[i] = &slot{
			buffer: make([]byte, outputMTU),
			chunks: make([]chunkExtent, 0, numChunks),
		}
	}
	output.SetDoneHandler(a.outputDone)
	return a
}

func (a *Assembler) MTU() int                   { return a.inputMTU }
func (a *Assembler) SetDoneHandler(done func()) { a.doneFn = done }
func (a *Assembler) SupportsCancel() bool       { return false }
func (a *Assembler) Cancel() {
	panic("fragment: Assembler.Cancel: input does not support cancellation")
}

// Send hands one carrier datagram to the assembler. Chunks are
// processed in order; if a chunk completes a frame, the frame is
// handed to output and the remainder of data is processed only once
// output's done fires (back-pressure).
func (a *Assembler) Send(data []byte) {
	a.in = data
	a.inPos = 0
	a.doIO()
}

func (a *Assembler) outputDone() {
	a.outputReady = false
	a.outPacket = nil
	a.doIO()
}

func (a *Assembler) doIO() {
	a.processInput()
	if a.outputReady {
		a.output.Send(a.outPacket)
		return
	}
	if a.doneFn != nil {
		a.doneFn()
	}
}

func (a *Assembler) processInput() {
	for a.inPos < len(a.in) {
		if len(a.in)-a.inPos < HeaderLen {
			break
		}
		h, err := DecodeChunkHeader(a.in[a.inPos:])
		if err != nil {
			break
		}
		pos := a.inPos + HeaderLen
		chunkLen := int(h.ChunkLen)
		if len(a.in)-pos < chunkLen {
			break
		}
		payload := a.in[pos : pos+chunkLen]
		a.inPos = pos + chunkLen

		a.processChunk(h, payload)
		if a.outputReady {
			return
		}
	}

	a.in = nil
	a.advanceTick()
}

func chunksOverlap(s1, l1, s2, l2 int) bool {
	return s1+l1 > s2 && s2+l2 > s1
}

func (a *Assembler) processChunk(h ChunkHeader, payload []byte) {
	chunkStart := int(h.ChunkStart)
	chunkLen := int(h.ChunkLen)
	if chunkStart > a.outputMTU || chunkLen > a.outputMTU-chunkStart {
		return
	}
	chunkEnd := chunkStart + chunkLen

	s := a.lookup(h.FrameID)
	if s != nil && a.timedOut(s) {
		a.freeSlot(s)
		s = nil
	}
	if s == nil {
		s = a.allocate(h.FrameID)
	}

	if slices.ContainsFunc(s.chunks, func(c chunkExtent) bool {
		return chunksOverlap(c.start, c.len, chunkStart, chunkLen)
	}) {
		a.freeSlot(s)
		return
	}

	if h.IsLast {
		if s.length >= 0 {
			a.freeSlot(s)
			return
		}
		if s.lengthSoFar > chunkEnd {
			a.freeSlot(s)
			return
		}
	} else if s.length >= 0 && chunkEnd > s.length {
		a.freeSlot(s)
		return
	}

	s.time = a.tick
	s.chunks = append(s.chunks, chunkExtent{chunkStart, chunkLen})
	s.sum += chunkLen
	if h.IsLast {
		s.length = chunkEnd
	} else if s.length < 0 && s.lengthSoFar < chunkEnd {
		s.lengthSoFar = chunkEnd
	}
	copy(s.buffer[chunkStart:chunkEnd], payload)

	if s.length < 0 || s.sum < s.length {
		if len(s.chunks) == a.numChunks {
			a.freeSlot(s)
		}
		return
	}

	frame := s.buffer[:s.length]
	a.freeSlot(s)
	a.outputReady = true
	a.outPacket = frame
}

func (a *Assembler) timedOut(s *slot) bool {
	return a.tick-s.time > a.tolerance
}

func (a *Assembler) lookup(id uint16) *slot {
	for _, s := range a.byID[xhash.FrameID(id)] {
		if s.id == id {
			return s
		}
	}
	return nil
}

func (a *Assembler) addByID(s *slot) {
	h := xhash.FrameID(s.id)
	a.byID[h] = append(a.byID[h], s)
}

func (a *Assembler) removeByID(s *slot) {
	h := xhash.FrameID(s.id)
	bucket := a.byID[h]
	for i, x := range bucket {
		if x == s {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(a.byID, h)
	} else {
		a.byID[h] = bucket
	}
}

// allocate returns a fresh slot for id, evicting the oldest used slot
// if the free pool is exhausted.
func (a *Assembler) allocate(id uint16) *slot {
	var s *slot
	if len(a.free) == 0 {
		front := a.used.Front()
		s = front.Value.(*slot)
		a.used.Remove(front)
		a.removeByID(s)
	} else {
		n := len(a.free) - 1
		s = a.free[n]
		a.free = a.free[:n]
	}
	s.id = id
	s.time = a.tick
	s.chunks = s.chunks[:0]
	s.sum = 0
	s.length = -1
	s.lengthSoFar = 0
	s.elem = a.used.PushBack(s)
	a.addByID(s)
	return s
}

func (a *Assembler) freeSlot(s *slot) {
	a.used.Remove(s.elem)
	s.elem = nil
	a.removeByID(s)
	a.free = append(a.free, s)
}

// advanceTick implements the monotonic clock and its renormalisation
// on overflow.
func (a *Assembler) advanceTick() {
	const maxTick = math.MaxUint32
	if a.tick == maxTick {
		a.reduceTimes()
		if a.used.Len() > 0 {
			a.tick++
		}
		return
	}
	a.tick++
}

func (a *Assembler) reduceTimes() {
	var minTime uint32
	haveMin := false

	for e, next := a.used.Front(), (*list.Element)(nil); e != nil; e = next {
		next = e.Next()
		s := e.Value.(*slot)
		if a.timedOut(s) {
			a.used.Remove(e)
			a.removeByID(s)
			a.free = append(a.free, s)
			continue
		}
		if !haveMin || s.time < minTime {
			minTime = s.time
			haveMin = true
		}
	}

	if !haveMin {
		a.tick = 0
		return
	}
	for e := a.used.Front(); e != nil; e = e.Next() {
		e.Value.(*slot).time -= minTime
	}
	a.tick -= minTime
}
