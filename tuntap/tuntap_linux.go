//go:build linux

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

package tuntap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/facebook/badvpn-go/reactor"
)

const clonePath = "/dev/net/tun"

// tunsetiff is TUNSETIFF's ioctl request number (_IOW('T', 202, int),
// fixed across architectures since it encodes no machine-word-sized
// struct, only the linux/if.h ifreq layout).
const tunsetiff = 0x400454ca

// ifReq mirrors linux/if.h's struct ifreq as used by TUNSETIFF: a
// 16-byte interface name followed by the IFF_* flags field.
type ifReq struct {
	name  [unix.IFNAMSIZ]byte
	flags uint16
	_     [22]byte // pad to sizeof(struct ifreq)
}

// Open creates (or attaches to an already-persistent) TAP or TUN
// device named name ("" lets the kernel assign "tap%d"/"tun%d"), sized
// for frames up to mtu bytes, and registers it with r.
func Open(r *reactor.Reactor, name string, mode Mode, mtu int) (*Device, error) {
	fd, err := unix.Open(clonePath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tuntap: open %s: %w", clonePath, err)
	}

	var req ifReq
	copy(req.name[:], name)
	req.flags = unix.IFF_NO_PI
	if mode == ModeTUN {
		req.flags |= unix.IFF_TUN
	} else {
		req.flags |= unix.IFF_TAP
	}

	if err := ioctlIfreq(fd, tunsetiff, &req); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tuntap: TUNSETIFF: %w", err)
	}

	d := &Device{ev: r.NewFDEvents(fd), fd: fd, name: unix.ByteSliceToString(req.name[:]), mtu: mtu}
	d.ev.SetWritable(d.writable)
	d.ev.SetReadable(d.readable)
	return d, nil
}

func ioctlIfreq(fd int, req uintptr, arg *ifReq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return errno
	}
	return nil
}
