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

// RecvBlocker is a PacketRecvInterface that sits idle until AllowOne
// is called; it then forwards exactly one pull to the upstream
// source, delivers that one result downstream, and returns to idle.
// dataproto.Dest uses this to gate its keepalive source: a keepalive
// is generated only when the inactivity monitor (or an explicit
// liveness event) calls AllowOne.
type RecvBlocker struct {
	upstream iface.PacketRecvInterface
	doneFn   func(int)
	allowed  bool
	pending  bool   // a Recv has been issued to upstream and not yet done
	buf      []byte // a Recv request awaiting permission via AllowOne
}

// NewRecvBlocker wires a blocker in front of upstream. It starts
// idle; call AllowOne to let the next Recv through.
func NewRecvBlocker(upstream iface.PacketRecvInterface) *RecvBlocker {
	b := &RecvBlocker{upstream: upstream}
	upstream.SetDoneHandler(b.upstreamDone)
	return b
}

func (b *RecvBlocker) MTU() int                      { return b.upstream.MTU() }
func (b *RecvBlocker) SetDoneHandler(done func(int)) { b.doneFn = done }

// Recv requests one packet. If AllowOne has not yet been called for
// this request, the request is held until it is.
func (b *RecvBlocker) Recv(buf []byte) {
	b.buf = buf
	b.tryForward()
}

// AllowOne permits exactly one pending or future Recv to reach the
// upstream source.
func (b *RecvBlocker) AllowOne() {
	if b.allowed {
		return
	}
	b.allowed = true
	b.tryForward()
}

func (b *RecvBlocker) tryForward() {
	if !b.allowed || b.buf == nil || b.pending {
		return
	}
	b.pending = true
	b.allowed = false
	buf := b.buf
	b.buf = nil
	b.upstream.Recv(buf)
}

func (b *RecvBlocker) upstreamDone(n int) {
	b.pending = false
	if b.doneFn != nil {
		b.doneFn(n)
	}
}
