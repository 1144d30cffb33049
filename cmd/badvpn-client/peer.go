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
	"crypto/tls"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/config"
	"github.com/facebook/badvpn-go/dataproto"
	"github.com/facebook/badvpn-go/iface"
	"github.com/facebook/badvpn-go/metrics"
	"github.com/facebook/badvpn-go/password"
	"github.com/facebook/badvpn-go/peerio"
	"github.com/facebook/badvpn-go/reactor"
	"github.com/facebook/badvpn-go/spproto"
)

// peerHandle bundles one configured peer's live pipeline: the
// transport (UDP or TCP) and the Dest liveness/fair-queue endpoint a
// dataproto.LocalSource attaches to once main wires up the local TAP
// device.
type peerHandle struct {
	cfg  config.PeerConfig
	dest *dataproto.Dest
	udp  *peerio.DatagramPeerIO
	tcp  *peerio.StreamPeerIO
}

// startPeer brings up one configured peer connection and wires it to
// frameOutput (the local TAP device's Send side, where reassembled
// inbound frames from this peer are delivered). gc carries the
// module-wide knobs (reassembly pool sizes, disassembly latency) that
// apply to every peer.
func startPeer(r *reactor.Reactor, gc *config.Config, cfg config.PeerConfig, frameOutput iface.PacketPassInterface, m *metrics.Metrics) (*peerHandle, error) {
	h := &peerHandle{cfg: cfg}
	liveness := func(up bool) {
		v := 0.0
		if up {
			v = 1
		}
		m.DestUp.WithLabelValues(cfg.Name).Set(v)
		log.Infof("badvpn-client: peer %s liveness changed: up=%v", cfg.Name, up)
	}

	switch cfg.Transport {
	case "udp":
		return startUDPPeer(r, gc, h, frameOutput, m, liveness)
	case "tcp":
		return startTCPPeer(r, h, frameOutput, m, liveness)
	default:
		return nil, fmt.Errorf("badvpn-client: peer %q: unsupported transport %q", cfg.Name, cfg.Transport)
	}
}

func startUDPPeer(r *reactor.Reactor, gc *config.Config, h *peerHandle, frameOutput iface.PacketPassInterface, m *metrics.Metrics, liveness func(bool)) (*peerHandle, error) {
	cfg := h.cfg
	var sendKey, recvKey [spproto.KeyLen]byte
	pw, err := cfg.ResolvePassword()
	if err != nil {
		return nil, err
	}
	// The connect password doubles as the pre-shared SPProto key
	// material in both directions: one shared secret both
	// authenticates the connection and derives the AEAD key.
	copy(sendKey[:], pw[:])
	copy(recvKey[:], pw[:])

	onRotation := func() { log.Warningf("badvpn-client: peer %s: SPProto key nearing sequence rotation threshold", cfg.Name) }
	onErr := func(err error) { log.Infof("badvpn-client: peer %s: %v", cfg.Name, err) }

	// dest is attached below, after construction; recvLiveness is
	// handed to the assembler's receive router now so the closure can
	// start forwarding Received() calls the moment the first datagram
	// arrives, which is always after this function has returned.
	var dest *dataproto.Dest
	recvLiveness := func(peerReceiving bool) {
		if dest != nil {
			dest.Received(peerReceiving)
		}
	}
	recvSink := maybeTrace(dataproto.NewRecvRouter(frameOutput, recvLiveness), cfg.Name, "rx")

	socketMTU := 1500
	var pio *peerio.DatagramPeerIO
	if cfg.Connect != "" {
		addr, err := net.ResolveUDPAddr("udp", cfg.Connect)
		if err != nil {
			return nil, fmt.Errorf("badvpn-client: peer %s: resolve connect addr: %w", cfg.Name, err)
		}
		pio, err = peerio.ConnectDatagram(r, addr, socketMTU, sendKey, recvKey, recvSink,
			gc.NumReassemblyFrames, gc.NumReassemblyChunks, gc.DisassemblyLatency, cfg.DSCP, onErr, onRotation)
		if err != nil {
			return nil, err
		}
	} else {
		addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
		if err != nil {
			return nil, fmt.Errorf("badvpn-client: peer %s: resolve listen addr: %w", cfg.Name, err)
		}
		pio, err = peerio.BindDatagram(r, addr, socketMTU, sendKey, recvKey, recvSink,
			gc.NumReassemblyFrames, gc.NumReassemblyChunks, gc.DisassemblyLatency, cfg.DSCP, onErr, onRotation)
		if err != nil {
			return nil, err
		}
	}
	h.udp = pio

	sink := cancelableSink{PacketPassInterface: pio.Disassembler, peer: cfg.Name}
	h.dest = dataproto.NewDest(r, cfg.DestID, maybeTrace(sink, cfg.Name, "tx"), cfg.KeepaliveInterval, cfg.ToleranceInterval, liveness)
	dest = h.dest
	return h, nil
}

func startTCPPeer(r *reactor.Reactor, h *peerHandle, frameOutput iface.PacketPassInterface, m *metrics.Metrics, liveness func(bool)) (*peerHandle, error) {
	cfg := h.cfg
	pw, err := cfg.ResolvePassword()
	if err != nil {
		return nil, err
	}
	onErr := func(err error) { log.Infof("badvpn-client: peer %s: %v", cfg.Name, err) }

	var tlsConfig *tls.Config
	if cfg.UseTLS {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("badvpn-client: peer %s: load TLS cert: %w", cfg.Name, err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	// TCP/TLS has no fragment reassembly of its own (PacketProto's
	// length-prefixed records already deliver whole DataProto
	// packets), but the receive side still needs RecvRouter to strip
	// the DataProto header and report liveness, same as the UDP path.
	var dest *dataproto.Dest
	recvLiveness := func(peerReceiving bool) {
		if dest != nil {
			dest.Received(peerReceiving)
		}
	}
	recvSink := maybeTrace(dataproto.NewRecvRouter(frameOutput, recvLiveness), cfg.Name, "rx")

	if cfg.Connect != "" {
		addr, err := net.ResolveTCPAddr("tcp", cfg.Connect)
		if err != nil {
			return nil, fmt.Errorf("badvpn-client: peer %s: resolve connect addr: %w", cfg.Name, err)
		}
		pio, err := peerio.ConnectStream(r, addr, pw, cfg.UseTLS, tlsConfig, []byte(cfg.PinnedCert), 1500, recvSink, onErr)
		if err != nil {
			return nil, err
		}
		h.tcp = pio
		sink := cancelableSink{PacketPassInterface: pio.Encoder, peer: cfg.Name}
		h.dest = dataproto.NewDest(r, cfg.DestID, maybeTrace(sink, cfg.Name, "tx"), cfg.KeepaliveInterval, cfg.ToleranceInterval, liveness)
		dest = h.dest
		return h, nil
	}

	// Listen mode: the connection only exists once a client has
	// authenticated through the password listener, which happens on the
	// reactor goroutine after Run has started. A deferred sink keeps
	// the Dest's transmit side cycling until then.
	fd, err := listenTCP(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("badvpn-client: peer %s: listen: %w", cfg.Name, err)
	}
	l := password.NewListener(r, fd, 0)
	sink := newDeferredSink(cfg.Name, 1500)
	l.AddPassword(pw, func(clientFD int) {
		pio, err := peerio.AcceptStream(r, clientFD, cfg.UseTLS, tlsConfig, []byte(cfg.PinnedCert), 1500, recvSink, onErr)
		if err != nil {
			log.Infof("badvpn-client: peer %s: accept: %v", cfg.Name, err)
			return
		}
		h.tcp = pio
		sink.Attach(pio.Encoder)
		log.Infof("badvpn-client: peer %s: client authenticated", cfg.Name)
	})
	h.dest = dataproto.NewDest(r, cfg.DestID, maybeTrace(sink, cfg.Name, "tx"), cfg.KeepaliveInterval, cfg.ToleranceInterval, liveness)
	dest = h.dest
	return h, nil
}

// listenTCP creates an already-listen(2)-ing, non-blocking TCP socket,
// the fd shape password.NewListener expects (mirrors
// peerio.newNonblockingSocket's defaults).
func listenTCP(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	family := unix.AF_INET
	if tcpAddr.IP.To4() == nil {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa, err := sockaddrFromTCP(tcpAddr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddrFromTCP(addr *net.TCPAddr) (unix.Sockaddr, error) {
	if v4 := addr.IP.To4(); v4 != nil {
		var a [4]byte
		copy(a[:], v4)
		return &unix.SockaddrInet4{Port: addr.Port, Addr: a}, nil
	}
	v6 := addr.IP.To16()
	if v6 == nil {
		return nil, fmt.Errorf("badvpn-client: invalid listen IP %v", addr.IP)
	}
	var a [16]byte
	copy(a[:], v6)
	return &unix.SockaddrInet6{Port: addr.Port, Addr: a}, nil
}
