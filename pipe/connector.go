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

// Connector is a PacketPassInterface whose downstream output can be
// swapped at runtime: Connect attaches it to a sink, Disconnect
// detaches it. dataproto.LocalSource uses one to route its small
// outgoing ring into whichever DataProtoDest it is currently attached
// to, without the ring itself needing to know about
// destination churn.
//
// Connector does not buffer while disconnected: Send must not be
// called unless a sink is currently attached (the owning node is
// responsible for only routing while attached).
type Connector struct {
	mtu    int
	output iface.PacketPassInterface
	doneFn func()
}

// NewConnector creates a disconnected connector with the given MTU
// (typically the frame MTU negotiated independently of any particular
// destination).
func NewConnector(mtu int) *Connector {
	return &Connector{mtu: mtu}
}

func (c *Connector) MTU() int                   { return c.mtu }
func (c *Connector) SetDoneHandler(done func()) { c.doneFn = done }
func (c *Connector) SupportsCancel() bool {
	return c.output != nil && c.output.SupportsCancel()
}
func (c *Connector) Cancel() {
	if c.output == nil {
		panic("pipe: Connector.Cancel while disconnected")
	}
	c.output.Cancel()
}

// Connect attaches output as the connector's current downstream sink.
func (c *Connector) Connect(output iface.PacketPassInterface) {
	c.output = output
	output.SetDoneHandler(c.outputDone)
}

// Disconnect detaches the current downstream sink. Must not be called
// while a Send through it is still outstanding.
func (c *Connector) Disconnect() {
	c.output = nil
}

// Connected reports whether a downstream sink is currently attached.
func (c *Connector) Connected() bool { return c.output != nil }

func (c *Connector) Send(data []byte) {
	if c.output == nil {
		panic("pipe: Connector.Send while disconnected")
	}
	c.output.Send(data)
}

func (c *Connector) outputDone() {
	if c.doneFn != nil {
		c.doneFn()
	}
}
