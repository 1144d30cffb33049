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

// Package peerio implements the two peer transports: DatagramPeerIO
// (UDP, connect or bind-and-learn, fragment+SPProto framed) and
// StreamPeerIO (TCP or TLS, password-authenticated, PacketProto
// framed). Both run on non-blocking golang.org/x/sys/unix sockets
// registered directly with reactor.Reactor, the same syscall-level
// style the reactor's own epoll/poll backends use.
package peerio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// newNonblockingSocket creates a non-blocking socket of the given
// family/type, with SO_REUSEADDR set so peer sockets can rebind
// after a restart.
func newNonblockingSocket(family, sotype int) (int, error) {
	fd, err := unix.Socket(family, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("peerio: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("peerio: SO_REUSEADDR: %w", err)
	}
	return fd, nil
}

// toSockaddr converts a *net.UDPAddr/*net.TCPAddr-shaped IP/port pair
// into a unix.Sockaddr, picking the v4 or v6 form as appropriate.
func toSockaddr(ip net.IP, port int) (unix.Sockaddr, error) {
	if v4 := ip.To4(); v4 != nil {
		var a [4]byte
		copy(a[:], v4)
		return &unix.SockaddrInet4{Port: port, Addr: a}, nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return nil, fmt.Errorf("peerio: invalid IP %v", ip)
	}
	var a [16]byte
	copy(a[:], v6)
	return &unix.SockaddrInet6{Port: port, Addr: a}, nil
}

// fromSockaddr converts a unix.Sockaddr learned from accept/recvfrom
// back into a net.Addr for logging and peer-address bookkeeping.
func fromSockaddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	default:
		return nil
	}
}

// dupForDSCP returns a CLOEXEC duplicate of fd, used by setDSCP so
// wrapping it in a net.PacketConn (required to drive
// golang.org/x/net/ipv4.PacketConn.SetTOS) never takes ownership of
// the reactor's own registered descriptor.
func dupForDSCP(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

func familyFor(ip net.IP) int {
	if ip.To4() != nil {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

// sockaddrsEqual reports whether two learned peer addresses refer to
// the same endpoint, used by DatagramPeerIO's bind mode to detect
// when the remembered sender address needs updating.
func sockaddrsEqual(a, b unix.Sockaddr) bool {
	switch av := a.(type) {
	case *unix.SockaddrInet4:
		bv, ok := b.(*unix.SockaddrInet4)
		return ok && av.Port == bv.Port && av.Addr == bv.Addr
	case *unix.SockaddrInet6:
		bv, ok := b.(*unix.SockaddrInet6)
		return ok && av.Port == bv.Port && av.Addr == bv.Addr
	default:
		return false
	}
}
