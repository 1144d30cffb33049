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

// Package password implements Listener: a port-level accept
// demultiplexer keyed on 64-bit connection passwords.
package password

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/reactor"
)

// Handler is invoked once a connection's password has matched. fd is
// an already-accepted socket; the handler owns it from this point on
// (typically by building a peerio.StreamPeerIO around it).
type Handler func(fd int)

// pendingClient is a half-authenticated accepted connection: it has
// been accept()-ed but has not yet delivered 8 matching password
// bytes.
type pendingClient struct {
	fd  int
	got int
	buf [8]byte
	l   *Listener
}

// Listener accepts TCP connections on one port, reads exactly 8
// bytes from each, and dispatches the socket to whichever handler was
// registered under that password, removing the entry on match
// (single-use). A maxPending cap on half-authenticated clients
// protects against a slow-loris of unauthenticated connections: past
// the cap, the oldest pending client is closed to accept a new one.
//
// TLS termination ahead of the password read is not wired here: a
// *tls.Conn's underlying fd cannot be recovered once crypto/tls owns
// it, and peerio.StreamPeerIO already performs its own TLS handshake
// on the handed-off socket in TLS mode. Sites that need TLS ahead of
// password auth terminate it at a reverse proxy in front of this
// listener.
type Listener struct {
	r        *reactor.Reactor
	fd       int
	handlers map[[8]byte]Handler

	maxPending int
	pending    []*pendingClient
}

// NewListener starts listening on fd (already bound and put into
// listen(2) mode by the caller) and registers its accept loop with r.
func NewListener(r *reactor.Reactor, fd int, maxPending int) *Listener {
	if maxPending <= 0 {
		maxPending = 32
	}
	l := &Listener{r: r, fd: fd, handlers: make(map[[8]byte]Handler), maxPending: maxPending}
	r.RegisterIO(fd, reactor.Readable, l.acceptReady)
	return l
}

// AddPassword registers handler to receive the next connection whose
// client sends exactly password. The entry is consumed (removed) on
// first match.
func (l *Listener) AddPassword(password [8]byte, handler Handler) {
	l.handlers[password] = handler
}

// RemovePassword cancels a previously registered, not-yet-matched
// password.
func (l *Listener) RemovePassword(password [8]byte) {
	delete(l.handlers, password)
}

func (l *Listener) acceptReady(reactor.Interest) {
	for {
		fd, _, err := unix.Accept(l.fd)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err != nil {
			log.Infof("password: accept: %v", err)
			return
		}
		unix.SetNonblock(fd, true)
		l.admit(fd)
	}
}

func (l *Listener) admit(fd int) {
	if len(l.pending) >= l.maxPending {
		oldest := l.pending[0]
		l.pending = l.pending[1:]
		log.Infof("password: too many half-authenticated clients, closing oldest")
		l.r.UnregisterIO(oldest.fd)
		unix.Close(oldest.fd)
	}

	pc := &pendingClient{fd: fd, l: l}
	l.pending = append(l.pending, pc)
	l.r.RegisterIO(fd, reactor.Readable, pc.readable)
}

func (l *Listener) forget(pc *pendingClient) {
	for i, p := range l.pending {
		if p == pc {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

func (pc *pendingClient) readable(reactor.Interest) {
	n, err := unix.Read(pc.fd, pc.buf[pc.got:])
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return
	}
	pc.l.r.UnregisterIO(pc.fd)
	if err != nil || n == 0 {
		pc.l.forget(pc)
		unix.Close(pc.fd)
		return
	}
	pc.got += n
	if pc.got < len(pc.buf) {
		pc.l.r.RegisterIO(pc.fd, reactor.Readable, pc.readable)
		return
	}

	pc.l.forget(pc)
	handler, ok := pc.l.handlers[pc.buf]
	if !ok {
		log.Infof("password: unknown password, closing")
		unix.Close(pc.fd)
		return
	}
	delete(pc.l.handlers, pc.buf) // single-use
	handler(pc.fd)
}
