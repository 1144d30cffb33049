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
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/pipe"
	"github.com/facebook/badvpn-go/reactor"
)

// PasswordLen is the size of the connection-authentication secret
// exchanged once, right after connect (or TLS handshake), before any
// PacketProto framing begins.
const PasswordLen = 8

// ErrClosed distinguishes an orderly peer close from an abnormal
// reset when notifying the owning layer.
var ErrClosed = errors.New("peerio: stream closed")

// rawStream is a StreamPassInterface/StreamRecvInterface pair wired
// directly to a non-blocking TCP socket, the same raw-fd/reactor
// discipline peerio's UDP sink/source use.
type rawStream struct {
	ev *reactor.FDEvents
	fd int

	sendBuf []byte
	sendFn  func(int)

	recvBuf []byte
	recvFn  func(int)
}

func newRawStream(r *reactor.Reactor, fd int) *rawStream {
	s := &rawStream{ev: r.NewFDEvents(fd), fd: fd}
	s.ev.SetWritable(s.writable)
	s.ev.SetReadable(s.readable)
	return s
}

func (s *rawStream) Send(data []byte)               { s.sendBuf = data; s.tryWrite() }
func (s *rawStream) SetDoneHandler(f func(int))     { s.sendFn = f }
func (s *rawStream) SetRecvDoneHandler(f func(int)) { s.recvFn = f }

func (s *rawStream) tryWrite() {
	n, err := unix.Write(s.fd, s.sendBuf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		s.ev.Arm(reactor.Writable)
		return
	}
	s.ev.Disarm(reactor.Writable)
	s.sendBuf = nil
	if err != nil {
		log.Infof("peerio: stream write: %v", err)
		if s.sendFn != nil {
			s.sendFn(0)
		}
		return
	}
	if s.sendFn != nil {
		s.sendFn(n)
	}
}

func (s *rawStream) writable(reactor.Interest) {
	if s.sendBuf == nil {
		return
	}
	s.tryWrite()
}

func (s *rawStream) Recv(buf []byte) { s.recvBuf = buf; s.tryRead() }

func (s *rawStream) tryRead() {
	n, err := unix.Read(s.fd, s.recvBuf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		s.ev.Arm(reactor.Readable)
		return
	}
	s.ev.Disarm(reactor.Readable)
	s.recvBuf = nil
	if err != nil {
		log.Infof("peerio: stream read: %v", err)
		if s.recvFn != nil {
			s.recvFn(0)
		}
		return
	}
	if s.recvFn != nil {
		s.recvFn(n) // n == 0 reports orderly close
	}
}

func (s *rawStream) readable(reactor.Interest) {
	if s.recvBuf == nil {
		return
	}
	s.tryRead()
}

func (s *rawStream) close() {
	s.ev.Detach()
	unix.Close(s.fd)
}

// rawStreamRecv adapts the receive direction of a rawStream to
// iface.StreamRecvInterface, kept distinct from rawStream's own
// Send-side SetDoneHandler so the two directions can install
// independent done callbacks.
type rawStreamRecv struct{ s *rawStream }

func (p rawStreamRecv) Recv(buf []byte)            { p.s.Recv(buf) }
func (p rawStreamRecv) SetDoneHandler(f func(int)) { p.s.SetRecvDoneHandler(f) }

// StreamPeerIO is a TCP or TLS peer channel, password-authenticated
// and PacketProto-framed.
//
// Rather than reimplement the TLS record layer on the raw
// non-blocking fd, a TLS-mode StreamPeerIO runs crypto/tls's blocking
// Conn on two dedicated goroutines per connection (one reader, one
// writer) and bridges their Read/Write completions back to the reactor
// thread over a self-pipe registered with RegisterIO; the goroutines
// never touch pipeline state, only post (n, err) results.
type StreamPeerIO struct {
	r  *reactor.Reactor
	fd int

	tls     *tlsBridge // nil in plain-TCP mode
	rawConn *rawStream // nil in TLS mode
	pinned  []byte     // expected peer certificate DER, nil if pinning disabled

	// Encoder is the send-side entry point: Send a whole frame here
	// to have it PacketProto-framed and written to the socket.
	Encoder iface.PacketPassInterface
	// decoder is the receive-side exit point, feeding reassembled
	// frames into the output sink given at construction.
	decoder *packetProtoDecoder
	pump    *pipe.SinglePacketBuffer

	onError func(error)
}

func (p *StreamPeerIO) streamPass() iface.StreamPassInterface {
	if p.tls != nil {
		return p.tls
	}
	return p.rawConn
}

func (p *StreamPeerIO) streamRecv() iface.StreamRecvInterface {
	if p.tls != nil {
		return tlsBridgeRecv{p.tls}
	}
	return rawStreamRecv{p.rawConn}
}

// wire sets up PacketProto framing over the already-authenticated
// stream, directing reassembled frames into output.
func (p *StreamPeerIO) wire(mtu int, output iface.PacketPassInterface) {
	p.Encoder = newPacketProtoEncoder(p.streamPass(), mtu)
	p.decoder = newPacketProtoDecoder(p.streamRecv(), output.MTU(), p.closed)
	p.pump = pipe.NewSinglePacketBuffer(p.decoder, output)
}

func (p *StreamPeerIO) closed() {
	if p.onError != nil {
		p.onError(ErrClosed)
	}
}

// sendPassword writes the 8-byte password and, once the write
// completes, invokes next. Only ConnectStream uses it; AcceptStream
// wires framing directly, since the password.Listener has already
// consumed the password.
func (p *StreamPeerIO) sendPassword(password [PasswordLen]byte, next func()) {
	buf := password
	sp := p.streamPass()
	sp.SetDoneHandler(func(n int) { next() })
	sp.Send(buf[:])
}

// ConnectStream dials addr over TCP (useTLS selects a TLS handshake with
// certificate pinning against pinnedCert, which must byte-equal the
// peer's full DER certificate), sends password, then wires
// PacketProto framing feeding output.
func ConnectStream(r *reactor.Reactor, addr *net.TCPAddr, password [PasswordLen]byte,
	useTLS bool, tlsConfig *tls.Config, pinnedCert []byte,
	mtu int, output iface.PacketPassInterface, onError func(error)) (*StreamPeerIO, error) {

	fd, err := newNonblockingSocket(familyFor(addr.IP), unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	sa, err := toSockaddr(addr.IP, addr.Port)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("peerio: connect: %w", err)
	}

	p := &StreamPeerIO{r: r, fd: fd, pinned: pinnedCert, onError: onError}
	if useTLS {
		conn, err := handshakeClientTLS(fd, tlsConfig, pinnedCert)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		p.tls = newTLSBridge(r, conn, onError)
	} else {
		p.rawConn = newRawStream(r, fd)
	}

	p.sendPassword(password, func() { p.wire(mtu, output) })
	return p, nil
}

// AcceptStream builds a StreamPeerIO around an already-accepted,
// already-password-verified connection — the shape a
// password.Listener hands off to its registered handler after
// consuming the 8-byte password itself.
func AcceptStream(r *reactor.Reactor, fd int, useTLS bool, tlsConfig *tls.Config, pinnedCert []byte,
	mtu int, output iface.PacketPassInterface, onError func(error)) (*StreamPeerIO, error) {
	p := &StreamPeerIO{r: r, fd: fd, pinned: pinnedCert, onError: onError}
	if useTLS {
		conn, err := handshakeServerTLS(fd, tlsConfig, pinnedCert)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		p.tls = newTLSBridge(r, conn, onError)
	} else {
		p.rawConn = newRawStream(r, fd)
	}
	p.wire(mtu, output)
	return p, nil
}

// Close tears down the underlying socket (and, in TLS mode, stops the
// bridging goroutine).
func (p *StreamPeerIO) Close() error {
	if p.tls != nil {
		return p.tls.close()
	}
	p.rawConn.close()
	return nil
}
