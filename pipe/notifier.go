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

import "github.com/facebook/badvpn-go/iface"

// Notifier is a pass-through PacketPassInterface that invokes a hook
// with (data, len) before forwarding Send downstream, letting the
// hook mutate the buffer in place. dataproto.Dest uses this to patch
// the RECEIVING_KEEPALIVES flag into the DataProto header of every
// outgoing packet, regardless of whether the packet is
// itself a keepalive.
type Notifier struct {
	output iface.PacketPassInterface
	hook   func(data []byte)
	doneFn func()
}

// NewNotifier wires a notifier upstream of output. hook runs
// synchronously inside Send, before the data reaches output.
func NewNotifier(output iface.PacketPassInterface, hook func(data []byte)) *Notifier {
	n := &Notifier{output: output, hook: hook}
	output.SetDoneHandler(n.outputDone)
	return n
}

func (n *Notifier) MTU() int                   { return n.output.MTU() }
func (n *Notifier) SetDoneHandler(done func()) { n.doneFn = done }
func (n *Notifier) SupportsCancel() bool       { return n.output.SupportsCancel() }
func (n *Notifier) Cancel()                    { n.output.Cancel() }

func (n *Notifier) Send(data []byte) {
	if n.hook != nil {
		n.hook(data)
	}
	n.output.Send(data)
}

func (n *Notifier) outputDone() {
	if n.doneFn != nil {
		n.doneFn()
	}
}
