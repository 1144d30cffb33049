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

// Package tuntap implements the TAP/TUN device boundary: the local
// end of the dataplane that reads and writes whole link-layer frames
// to the kernel, wired into the same iface.PacketPassInterface/
// PacketRecvInterface pipeline as every other node. Uses the same
// raw non-blocking fd discipline as peerio's sockets
// (golang.org/x/sys/unix, registered directly with reactor.Reactor),
// applied to a character device fd instead of a socket fd.
package tuntap

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/reactor"
)

// Mode selects whether the opened device strips (TUN) or keeps (TAP)
// the Ethernet header. badvpn-go's dataplane always carries whole
// link-layer frames, so Device is normally opened in TAP
// mode; TUN is offered for sites that route at L3 instead.
type Mode int

const (
	ModeTAP Mode = iota
	ModeTUN
)

// Device is a PacketPassInterface/PacketRecvInterface pair bound to a
// TAP or TUN character device, following the exact non-blocking
// read/write-with-EAGAIN-retry discipline peerio.rawStream uses for
// TCP sockets.
type Device struct {
	ev   *reactor.FDEvents
	fd   int
	name string
	mtu  int

	sendBuf []byte
	sendFn  func()

	recvBuf []byte
	recvFn  func(int)
}

// MTU implements iface.PacketPassInterface/PacketRecvInterface.
func (d *Device) MTU() int { return d.mtu }

// Name returns the kernel-assigned or requested interface name (e.g.
// "tap0"), used by netlinkif to bring the link up and assign an MTU
// once Open has returned.
func (d *Device) Name() string { return d.name }

// SetDoneHandler implements iface.PacketPassInterface: invoked once
// per Send after the frame has been written to the device.
func (d *Device) SetDoneHandler(f func()) { d.sendFn = f }

// SupportsCancel implements iface.PacketPassInterface: a TAP/TUN write
// is one syscall, never split across Writable retries long enough to
// need mid-flight cancellation.
func (d *Device) SupportsCancel() bool { return false }
func (d *Device) Cancel()              { panic("tuntap: Device.Cancel: not supported") }

// Send writes one frame to the device (iface.PacketPassInterface).
func (d *Device) Send(data []byte) {
	d.sendBuf = data
	d.tryWrite()
}

func (d *Device) tryWrite() {
	n, err := unix.Write(d.fd, d.sendBuf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		d.ev.Arm(reactor.Writable)
		return
	}
	d.ev.Disarm(reactor.Writable)
	if err != nil {
		log.Infof("tuntap: write %s: %v", d.name, err)
	} else if n < len(d.sendBuf) {
		log.Warningf("tuntap: short write to %s: %d/%d bytes", d.name, n, len(d.sendBuf))
	}
	d.sendBuf = nil
	if d.sendFn != nil {
		d.sendFn()
	}
}

func (d *Device) writable(reactor.Interest) {
	if d.sendBuf == nil {
		return
	}
	d.tryWrite()
}

// SetRecvDoneHandler implements iface.PacketRecvInterface.
func (d *Device) SetRecvDoneHandler(f func(int)) { d.recvFn = f }

// Recv reads one frame from the device into buf (iface.PacketRecvInterface).
func (d *Device) Recv(buf []byte) {
	d.recvBuf = buf
	d.tryRead()
}

func (d *Device) tryRead() {
	n, err := unix.Read(d.fd, d.recvBuf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		d.ev.Arm(reactor.Readable)
		return
	}
	d.ev.Disarm(reactor.Readable)
	if err != nil {
		log.Infof("tuntap: read %s: %v", d.name, err)
		n = 0
	}
	d.recvBuf = nil
	if d.recvFn != nil {
		d.recvFn(n)
	}
}

func (d *Device) readable(reactor.Interest) {
	if d.recvBuf == nil {
		return
	}
	d.tryRead()
}

// Close releases the underlying device fd. The caller must have
// already detached any pipeline nodes wired to Send/Recv.
func (d *Device) Close() error {
	d.ev.Detach()
	return unix.Close(d.fd)
}

var errUnsupported = fmt.Errorf("tuntap: not supported on this platform")
