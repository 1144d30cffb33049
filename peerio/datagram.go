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

package peerio

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/fragment"
	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/pipe"
	"github.com/facebook/badvpn-go/reactor"
	"github.com/facebook/badvpn-go/spproto"
)

// datagramSink is a PacketPassInterface that writes each packet
// handed to it as one UDP datagram to a fixed or learned destination.
// It never blocks the reactor thread: a write that would block
// (EAGAIN) arms Writable interest and retries from the I/O handler.
type datagramSink struct {
	ev     *reactor.FDEvents
	fd     int
	mtu    int
	doneFn func()

	dest    unix.Sockaddr
	pending []byte
}

func newDatagramSink(ev *reactor.FDEvents, fd, mtu int) *datagramSink {
	s := &datagramSink{ev: ev, fd: fd, mtu: mtu}
	ev.SetWritable(s.writable)
	return s
}

func (s *datagramSink) MTU() int                   { return s.mtu }
func (s *datagramSink) SetDoneHandler(done func()) { s.doneFn = done }
func (s *datagramSink) SupportsCancel() bool       { return true }
func (s *datagramSink) Cancel() {
	s.pending = nil
	s.ev.Disarm(reactor.Writable)
}

// setDest updates the destination every send targets; used directly
// (connect mode, fixed for the socket's lifetime) and indirectly via
// the bind-mode "remembered sender" update path.
func (s *datagramSink) setDest(dest unix.Sockaddr) { s.dest = dest }

func (s *datagramSink) Send(data []byte) {
	s.pending = data
	s.tryWrite()
}

func (s *datagramSink) tryWrite() {
	if s.dest == nil {
		// bind-mode socket that hasn't learned a peer yet: the
		// packet is simply dropped, nothing can be sent until the
		// first datagram arrives.
		s.pending = nil
		if s.doneFn != nil {
			s.doneFn()
		}
		return
	}
	err := unix.Sendto(s.fd, s.pending, 0, s.dest)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		s.ev.Arm(reactor.Writable)
		return
	}
	if err != nil {
		log.Infof("peerio: datagram sendto: %v", err)
	}
	s.pending = nil
	s.ev.Disarm(reactor.Writable)
	if s.doneFn != nil {
		s.doneFn()
	}
}

func (s *datagramSink) writable(reactor.Interest) {
	if s.pending == nil {
		return
	}
	s.tryWrite()
}

// datagramSource is a PacketRecvInterface reading one UDP datagram
// per Recv call. onPeer, if set, is invoked with every sender address
// observed — DatagramPeerIO's bind mode uses it to learn/refresh the
// remembered destination.
type datagramSource struct {
	ev     *reactor.FDEvents
	fd     int
	mtu    int
	doneFn func(int)

	buf    []byte
	onPeer func(unix.Sockaddr)
}

func newDatagramSource(ev *reactor.FDEvents, fd, mtu int) *datagramSource {
	s := &datagramSource{ev: ev, fd: fd, mtu: mtu}
	ev.SetReadable(s.readable)
	return s
}

func (s *datagramSource) MTU() int                      { return s.mtu }
func (s *datagramSource) SetDoneHandler(done func(int)) { s.doneFn = done }

func (s *datagramSource) Recv(buf []byte) {
	s.buf = buf
	s.tryRead()
}

// tryRead attempts one non-blocking recvfrom. Readable interest is
// disarmed before the done callback runs: done may synchronously
// issue the next Recv, and that Recv's own EAGAIN re-arms.
func (s *datagramSource) tryRead() {
	n, from, err := unix.Recvfrom(s.fd, s.buf, 0)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		s.ev.Arm(reactor.Readable)
		return
	}
	if err != nil {
		log.Infof("peerio: datagram recvfrom: %v", err)
		s.ev.Arm(reactor.Readable)
		return
	}
	if s.onPeer != nil && from != nil {
		s.onPeer(from)
	}
	s.ev.Disarm(reactor.Readable)
	s.buf = nil
	if s.doneFn != nil {
		s.doneFn(n)
	}
}

func (s *datagramSource) readable(reactor.Interest) {
	if s.buf == nil {
		return
	}
	s.tryRead()
}

// DatagramPeerIO is a UDP peer channel: either a connected client
// (ConnectDatagram) or a bind-and-learn server (BindDatagram). It wraps the raw
// socket with SPProto encode/decode and FragmentProto
// disassembly/reassembly, so its exported Disassembler/Assembler ends
// carry whole link-layer frames, not carrier datagrams.
type DatagramPeerIO struct {
	r  *reactor.Reactor
	fd int

	learned bool

	ev       *reactor.FDEvents
	sink     *datagramSink
	source   *datagramSource
	recvPump *pipe.SinglePacketBuffer

	// Disassembler is the send-side entry point: Send a whole
	// link-layer frame here to have it chunked, encrypted and
	// transmitted.
	Disassembler *fragment.Disassembler
	// Assembler is the receive-side exit point: its output sink
	// (passed to ConnectDatagram/BindDatagram) receives whole reassembled frames.
	Assembler *fragment.Assembler
	Encoder   *spproto.Encoder
	Decoder   *spproto.Decoder
}

// datagramPeerIOParams bundles the construction knobs shared by
// ConnectDatagram and BindDatagram.
type datagramPeerIOParams struct {
	socketMTU            int
	sendKey, recvKey     [spproto.KeyLen]byte
	frameOutput          iface.PacketPassInterface
	numFrames, numChunks int
	latency              time.Duration
	dscp                 int
	onError              func(error)
	onKeyRotationWarning func()
}

func newDatagramPeerIO(r *reactor.Reactor, fd int, p datagramPeerIOParams) *DatagramPeerIO {
	d := &DatagramPeerIO{r: r, fd: fd}
	d.ev = r.NewFDEvents(fd)
	d.sink = newDatagramSink(d.ev, fd, p.socketMTU)
	d.source = newDatagramSource(d.ev, fd, p.socketMTU)

	d.Encoder = spproto.NewEncoder(d.sink, p.sendKey, p.onKeyRotationWarning)
	d.Disassembler = fragment.NewDisassembler(r, d.Encoder, d.Encoder.MTU(), p.latency)

	assemblerInputMTU := p.socketMTU - spproto.OverheadLen
	d.Assembler = fragment.NewAssembler(p.frameOutput, assemblerInputMTU, p.numFrames, p.numChunks)
	d.Decoder = spproto.NewDecoder(d.Assembler, p.recvKey, p.onError)
	d.recvPump = pipe.NewSinglePacketBuffer(d.source, d.Decoder)

	return d
}

// ConnectDatagram creates a DatagramPeerIO sending to and receiving from a
// fixed remote address.
func ConnectDatagram(r *reactor.Reactor, addr *net.UDPAddr, socketMTU int, sendKey, recvKey [spproto.KeyLen]byte,
	frameOutput iface.PacketPassInterface, numFrames, numChunks int, latency time.Duration, dscp int,
	onError func(error), onKeyRotationWarning func()) (*DatagramPeerIO, error) {

	fd, err := newNonblockingSocket(familyFor(addr.IP), unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	dest, err := toSockaddr(addr.IP, addr.Port)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := setDSCP(fd, addr.IP.To4() == nil, dscp); err != nil {
		log.Infof("peerio: setDSCP: %v", err)
	}

	d := newDatagramPeerIO(r, fd, datagramPeerIOParams{
		socketMTU: socketMTU, sendKey: sendKey, recvKey: recvKey,
		frameOutput: frameOutput, numFrames: numFrames, numChunks: numChunks,
		latency: latency, dscp: dscp, onError: onError, onKeyRotationWarning: onKeyRotationWarning,
	})
	d.sink.setDest(dest)
	d.learned = true
	return d, nil
}

// BindDatagram creates a bind-and-learn DatagramPeerIO: it listens on addr
// but cannot send until the first datagram is received, at which
// point the sender's address becomes (and stays, refreshed on every
// subsequent receive) the send destination.
func BindDatagram(r *reactor.Reactor, addr *net.UDPAddr, socketMTU int, sendKey, recvKey [spproto.KeyLen]byte,
	frameOutput iface.PacketPassInterface, numFrames, numChunks int, latency time.Duration, dscp int,
	onError func(error), onKeyRotationWarning func()) (*DatagramPeerIO, error) {

	fd, err := newNonblockingSocket(familyFor(addr.IP), unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	local, err := toSockaddr(addr.IP, addr.Port)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, local); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("peerio: bind: %w", err)
	}
	if err := setDSCP(fd, addr.IP.To4() == nil, dscp); err != nil {
		log.Infof("peerio: setDSCP: %v", err)
	}

	d := newDatagramPeerIO(r, fd, datagramPeerIOParams{
		socketMTU: socketMTU, sendKey: sendKey, recvKey: recvKey,
		frameOutput: frameOutput, numFrames: numFrames, numChunks: numChunks,
		latency: latency, dscp: dscp, onError: onError, onKeyRotationWarning: onKeyRotationWarning,
	})
	d.source.onPeer = d.learnPeer
	return d, nil
}

func (p *DatagramPeerIO) learnPeer(from unix.Sockaddr) {
	if !p.learned || !sockaddrsEqual(from, p.sink.dest) {
		p.sink.setDest(from)
		p.learned = true
		log.Infof("peerio: learned peer address %v", fromSockaddr(from))
	}
}

// Close releases the underlying socket. The caller must have already
// detached any pipeline nodes wired to Disassembler/Assembler.
func (p *DatagramPeerIO) Close() error {
	p.ev.Detach()
	return unix.Close(p.fd)
}
