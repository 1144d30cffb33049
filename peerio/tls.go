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
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/reactor"
)

// handshakeClientTLS performs a blocking TLS client handshake over fd
// (wrapped as a net.Conn) and, if pinnedCert is non-empty, verifies
// the peer's leaf certificate byte-equals it: pinning compares the
// full DER peer-certificate bytes, not just a fingerprint.
func handshakeClientTLS(fd int, cfg *tls.Config, pinnedCert []byte) (*tls.Conn, error) {
	nc, err := fdToNetConn(fd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &tls.Config{}
	}
	conn := tls.Client(nc, cfg)
	if err := conn.Handshake(); err != nil {
		return nil, fmt.Errorf("peerio: tls client handshake: %w", err)
	}
	if err := checkPinnedCert(conn, pinnedCert); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// handshakeServerTLS is the accept-side analogue of
// handshakeClientTLS.
func handshakeServerTLS(fd int, cfg *tls.Config, pinnedCert []byte) (*tls.Conn, error) {
	nc, err := fdToNetConn(fd)
	if err != nil {
		return nil, err
	}
	conn := tls.Server(nc, cfg)
	if err := conn.Handshake(); err != nil {
		return nil, fmt.Errorf("peerio: tls server handshake: %w", err)
	}
	if err := checkPinnedCert(conn, pinnedCert); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func checkPinnedCert(conn *tls.Conn, pinnedCert []byte) error {
	if len(pinnedCert) == 0 {
		return nil
	}
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("peerio: tls: no peer certificate presented")
	}
	if !bytes.Equal(state.PeerCertificates[0].Raw, pinnedCert) {
		return fmt.Errorf("peerio: tls: peer certificate does not match pinned certificate")
	}
	return nil
}

// fdToNetConn wraps a raw socket fd as a blocking net.Conn for
// crypto/tls to drive its handshake and record layer over. The fd is
// switched to blocking mode and stays so; net.FileConn works on a dup
// of it, and the original fd is closed once the dup exists. All further
// I/O goes through the blocking tls.Conn on tlsBridge's goroutines.
func fdToNetConn(fd int) (net.Conn, error) {
	if err := unix.SetNonblock(fd, false); err != nil {
		return nil, fmt.Errorf("peerio: clear nonblock for tls: %w", err)
	}
	f := os.NewFile(uintptr(fd), "badvpn-tls-socket")
	nc, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("peerio: FileConn: %w", err)
	}
	return nc, nil
}

// tlsBridge adapts a blocking *tls.Conn to the reactor's async
// StreamPass/RecvInterface contracts. Two goroutines per connection
// perform the blocking calls, one for Read and one for Write; they
// never touch reactor or pipeline state directly, only post (n, err)
// results through a self-pipe the reactor polls like any other fd.
type tlsBridge struct {
	r    *reactor.Reactor
	conn *tls.Conn

	wakeR, wakeW int // self-pipe read/write ends

	writeReq chan []byte
	writeRes chan ioResult
	readReq  chan []byte
	readRes  chan ioResult

	sendDone func(int)
	recvDone func(int)
}

type ioResult struct {
	n   int
	err error
}

func newTLSBridge(r *reactor.Reactor, conn *tls.Conn, onError func(error)) *tlsBridge {
	fds, err := unixSocketpair()
	if err != nil {
		log.Warningf("peerio: tlsBridge: socketpair: %v", err)
	}
	b := &tlsBridge{
		r: r, conn: conn,
		wakeR: fds[0], wakeW: fds[1],
		writeReq: make(chan []byte), writeRes: make(chan ioResult, 1),
		readReq: make(chan []byte), readRes: make(chan ioResult, 1),
	}
	// The wake pipe stays registered for the bridge's whole life; the
	// reactor tracks one registration per fd, and both directions
	// complete through this single handler.
	r.RegisterIO(b.wakeR, reactor.Readable, b.onWake)
	go b.writerLoop()
	go b.readerLoop()
	return b
}

func (b *tlsBridge) writerLoop() {
	for data := range b.writeReq {
		n, err := b.conn.Write(data)
		b.writeRes <- ioResult{n, err}
		b.ping(b.wakeW)
	}
}

func (b *tlsBridge) readerLoop() {
	for buf := range b.readReq {
		n, err := b.conn.Read(buf)
		b.readRes <- ioResult{n, err}
		b.ping(b.wakeW)
	}
}

func (b *tlsBridge) ping(fd int) {
	unix.Write(fd, []byte{0})
}

func (b *tlsBridge) SetDoneHandler(f func(int))     { b.sendDone = f }
func (b *tlsBridge) SetRecvDoneHandler(f func(int)) { b.recvDone = f }

// tlsBridgeRecv adapts the receive direction of a tlsBridge to
// iface.StreamRecvInterface, the same split rawStreamRecv performs for
// plain TCP: both stream interfaces name their setter SetDoneHandler,
// and the two directions need independent callbacks.
type tlsBridgeRecv struct{ b *tlsBridge }

func (p tlsBridgeRecv) Recv(buf []byte)            { p.b.Recv(buf) }
func (p tlsBridgeRecv) SetDoneHandler(f func(int)) { p.b.SetRecvDoneHandler(f) }

func (b *tlsBridge) Send(data []byte) {
	b.writeReq <- data
}

func (b *tlsBridge) Recv(buf []byte) {
	b.readReq <- buf
}

// onWake drains every ping byte and every queued completion: a write
// and a read may finish between two reactor iterations, and each must
// reach its own done callback.
func (b *tlsBridge) onWake(reactor.Interest) {
	var drain [16]byte
	for {
		n, err := unix.Read(b.wakeR, drain[:])
		if n < len(drain) || err != nil {
			break
		}
	}
	for {
		select {
		case res := <-b.writeRes:
			if res.err != nil {
				log.Infof("peerio: tls write: %v", res.err)
			}
			if b.sendDone != nil {
				b.sendDone(res.n)
			}
			continue
		default:
		}
		select {
		case res := <-b.readRes:
			if res.err != nil {
				log.Infof("peerio: tls read: %v", res.err)
				res.n = 0
			}
			if b.recvDone != nil {
				b.recvDone(res.n)
			}
			continue
		default:
		}
		return
	}
}

func (b *tlsBridge) close() error {
	b.r.UnregisterIO(b.wakeR)
	close(b.writeReq)
	close(b.readReq)
	unix.Close(b.wakeR)
	unix.Close(b.wakeW)
	return b.conn.Close()
}

// unixSocketpair creates a connected pair of non-blocking UNIX domain
// sockets used purely as a self-pipe wakeup mechanism.
func unixSocketpair() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{fds[0], fds[1]}, nil
}
