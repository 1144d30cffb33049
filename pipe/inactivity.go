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

package pipe

import (
	"time"

	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/reactor"
)

// InactivityMonitor is a pass-through PacketPassInterface that tracks
// how long it has been since a packet last passed through it. It
// starts (or resets) a timer of duration T on every downstream done
// and every Send; if the timer ever expires, it invokes hook.
// dataproto.Dest uses this to know when to emit a keepalive.
type InactivityMonitor struct {
	output iface.PacketPassInterface
	timer  *reactor.Timer
	hook   func()
	doneFn func()
}

// NewInactivityMonitor wires a monitor upstream of output, arming an
// interval-T timer immediately.
func NewInactivityMonitor(r *reactor.Reactor, output iface.PacketPassInterface, interval time.Duration, hook func()) *InactivityMonitor {
	m := &InactivityMonitor{output: output, hook: hook}
	m.timer = r.NewTimer(interval, m.fire)
	output.SetDoneHandler(m.outputDone)
	m.timer.Reset()
	return m
}

func (m *InactivityMonitor) MTU() int                   { return m.output.MTU() }
func (m *InactivityMonitor) SetDoneHandler(done func()) { m.doneFn = done }
func (m *InactivityMonitor) SupportsCancel() bool       { return m.output.SupportsCancel() }
func (m *InactivityMonitor) Cancel()                    { m.output.Cancel() }

func (m *InactivityMonitor) Send(data []byte) {
	m.timer.Reset()
	m.output.Send(data)
}

func (m *InactivityMonitor) outputDone() {
	m.timer.Reset()
	if m.doneFn != nil {
		m.doneFn()
	}
}

func (m *InactivityMonitor) fire() {
	if m.hook != nil {
		m.hook()
	}
}

// Stop deactivates the underlying timer, for use during teardown.
func (m *InactivityMonitor) Stop() { m.timer.Cancel() }
