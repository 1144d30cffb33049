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
	"github.com/google/gopacket"
	log "github.com/sirupsen/logrus"

	"github.com/facebook/badvpn-go/dataproto"
	"github.com/facebook/badvpn-go/iface"
)

// traceSink is a pass-through PacketPassInterface inserted on a
// peer's transmit and receive paths when --trace-layer2 is set: every
// DataProto packet crossing it is decoded through gopacket (the
// DataProto header, then the Ethernet frame it carries) and dumped to
// the debug log before being forwarded untouched. Done, cancel and
// MTU all pass straight through to the wrapped sink, so inserting the
// tracer changes nothing about the pipeline's flow control.
type traceSink struct {
	iface.PacketPassInterface
	peer string
	dir  string // "tx" or "rx"
}

func newTraceSink(next iface.PacketPassInterface, peer, dir string) traceSink {
	return traceSink{PacketPassInterface: next, peer: peer, dir: dir}
}

func (t traceSink) Send(data []byte) {
	pkt := gopacket.NewPacket(data, dataproto.LayerTypeDataProto, gopacket.Default)
	log.Debugf("badvpn-client: trace-layer2 peer %s %s:\n%v", t.peer, t.dir, pkt)
	t.PacketPassInterface.Send(data)
}

// maybeTrace wraps sink in a traceSink when --trace-layer2 is set,
// and returns it unchanged otherwise.
func maybeTrace(sink iface.PacketPassInterface, peer, dir string) iface.PacketPassInterface {
	if !traceLayer2Flag {
		return sink
	}
	return newTraceSink(sink, peer, dir)
}
