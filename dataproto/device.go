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
	"github.com/facebook/badvpn-go/iface"
)

// Device wraps the TAP PacketRecvInterface. Each buffer it hands to
// the TAP source is pre-offset by MaxOverhead so a DataProto header
// can be prepended in place; on every received frame it records the
// buffer/length and invokes Router, letting it call back into zero or
// more LocalSource.Route calls for the same frame (a frame routed to
// more than one destination, e.g. a flooded broadcast, calls
// Route(more=true) on every call but the last).
//
// The live buffer is handed off exactly once: Device.consumeCurrent
// gives it to the last (more=false) Route call, and LocalSource
// copies out a private buffer on every earlier one, so no two
// destinations ever observe each other's in-place header write.
type Device struct {
	input    iface.PacketRecvInterface
	frameMTU int
	router   func(recvLen int)

	currentBuf   []byte
	currentLen   int
	recvInFlight bool
}

// NewDevice wires a device around input (typically a TAP adapter's
// PacketRecvInterface). router is invoked once per received frame
// with the frame's length; it is expected to call some LocalSource's
// Route zero or more times before returning, the last of which (if
// any) must pass more=false.
func NewDevice(input iface.PacketRecvInterface, router func(recvLen int)) *Device {
	d := &Device{input: input, frameMTU: input.MTU(), router: router}
	input.SetDoneHandler(d.recvDone)
	d.pump()
	return d
}

// FrameMTU is the maximum frame size the wrapped TAP source produces.
func (d *Device) FrameMTU() int { return d.frameMTU }

func (d *Device) pump() {
	if d.recvInFlight {
		return
	}
	buf := make([]byte, MaxOverhead+d.frameMTU)
	d.recvInFlight = true
	d.currentBuf = buf
	d.input.Recv(buf[MaxOverhead:])
}

func (d *Device) recvDone(n int) {
	d.recvInFlight = false
	d.currentLen = n
	if d.router != nil {
		d.router(n)
	}
	// If the router never routed the frame anywhere (no matching
	// destination, e.g. an unknown unicast MAC), nothing ever called
	// consumeCurrent; pump unconditionally so a misbehaving or
	// no-op router can never stall the TAP recv loop.
	d.pump()
}

// currentFrame returns the buffer (with its MaxOverhead prefix) and
// length of the frame currently being routed.
func (d *Device) currentFrame() ([]byte, int) {
	return d.currentBuf, d.currentLen
}

// consumeCurrent is called by the last (more=false) Route call for
// the current frame; it lets Device post its next Recv immediately
// rather than waiting for recvDone's unconditional pump, matching the
// original's "obtain the next TAP buffer" timing.
func (d *Device) consumeCurrent() {
	d.pump()
}
