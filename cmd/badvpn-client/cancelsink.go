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

package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/facebook/badvpn-go/iface"
)

// cancelableSink adapts a PacketPassInterface that does not support
// mid-flight cancellation (fragment.Disassembler, the PacketProto
// stream encoder) to dataproto.NewDest's output contract, which
// requires SupportsCancel()==true so a destination being torn down
// can drop its outstanding send instead of blocking teardown on it.
// Cancel here only logs: both underlying sinks complete their
// in-flight Send almost immediately (one non-blocking syscall or one
// chunk-batching step), so there is never a long-lived send worth
// actually aborting.
type cancelableSink struct {
	iface.PacketPassInterface
	peer string
}

func (s cancelableSink) SupportsCancel() bool { return true }
func (s cancelableSink) Cancel() {
	log.Debugf("badvpn-client: cancel requested for peer %s (no-op, in-flight send completes on its own)", s.peer)
}

// deferredSink stands in for a stream encoder that does not exist yet:
// a listen-mode TCP peer has no connection until a client authenticates
// through the password listener, which happens on the reactor goroutine
// after Run has started. Until Attach, every Send completes immediately
// and the packet is dropped — there is no peer to deliver it to — so
// the Dest's keepalive machinery keeps cycling without ever blocking.
type deferredSink struct {
	peer   string
	mtu    int
	doneFn func()
	output iface.PacketPassInterface
}

func newDeferredSink(peer string, mtu int) *deferredSink {
	return &deferredSink{peer: peer, mtu: mtu}
}

// Attach swaps the real encoder in. Must be called from the reactor
// goroutine with no Send outstanding (pre-attach sends complete
// synchronously, so none ever is).
func (s *deferredSink) Attach(output iface.PacketPassInterface) {
	s.output = output
	output.SetDoneHandler(func() {
		if s.doneFn != nil {
			s.doneFn()
		}
	})
}

func (s *deferredSink) MTU() int                { return s.mtu }
func (s *deferredSink) SetDoneHandler(f func()) { s.doneFn = f }
func (s *deferredSink) SupportsCancel() bool    { return true }
func (s *deferredSink) Cancel() {
	log.Debugf("badvpn-client: cancel requested for peer %s (no-op, in-flight send completes on its own)", s.peer)
}

func (s *deferredSink) Send(data []byte) {
	if s.output == nil {
		log.Debugf("badvpn-client: peer %s: dropping packet, no client authenticated yet", s.peer)
		if s.doneFn != nil {
			s.doneFn()
		}
		return
	}
	s.output.Send(data)
}
