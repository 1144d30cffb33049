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

// FDEvents owns a descriptor's single reactor registration and fans
// readiness out to independently armed read and write halves. The
// reactor tracks exactly one registration per fd, so any node that
// both reads and writes the same descriptor (a UDP socket, a TCP
// socket, a TAP device) must share one FDEvents between its two
// directions rather than call RegisterIO twice.
type FDEvents struct {
	r    *Reactor
	fd   int
	mask Interest

	onReadable IOHandler
	onWritable IOHandler
}

// NewFDEvents creates an unarmed demultiplexer for fd. Nothing is
// registered with the reactor until the first Arm call.
func (r *Reactor) NewFDEvents(fd int) *FDEvents {
	return &FDEvents{r: r, fd: fd}
}

// SetReadable installs the handler invoked when fd is readable while
// Readable interest is armed.
func (e *FDEvents) SetReadable(h IOHandler) { e.onReadable = h }

// SetWritable installs the handler invoked when fd is writable while
// Writable interest is armed.
func (e *FDEvents) SetWritable(h IOHandler) { e.onWritable = h }

// Arm adds bits to the interest mask, registering or updating the
// underlying reactor registration as needed. Idempotent.
func (e *FDEvents) Arm(bits Interest) { e.update(e.mask | bits) }

// Disarm removes bits from the interest mask. Idempotent.
func (e *FDEvents) Disarm(bits Interest) { e.update(e.mask &^ bits) }

// Detach drops the registration entirely. Must be called before the
// descriptor is closed.
func (e *FDEvents) Detach() { e.update(0) }

func (e *FDEvents) update(mask Interest) {
	if mask == e.mask {
		return
	}
	prev := e.mask
	e.mask = mask
	switch {
	case prev == 0:
		e.r.RegisterIO(e.fd, mask, e.dispatch)
	case mask == 0:
		e.r.UnregisterIO(e.fd)
	default:
		e.r.ModifyIO(e.fd, mask)
	}
}

// dispatch routes one readiness report to the armed halves. Err is
// delivered to both, so whichever direction is waiting observes the
// failure on its next syscall. A handler may Disarm (or Detach) from
// within dispatch; the mask is re-checked before the second half runs.
func (e *FDEvents) dispatch(ev Interest) {
	if e.mask&Readable != 0 && ev&(Readable|Err) != 0 && e.onReadable != nil {
		e.onReadable(ev)
	}
	if e.mask&Writable != 0 && ev&(Writable|Err) != 0 && e.onWritable != nil {
		e.onWritable(ev)
	}
}
