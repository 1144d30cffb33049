//go:build !linux

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

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller backs the reactor's I/O wait with poll(2), the portable
// fallback used on non-Linux platforms (BSD, Darwin). Unlike epoll it
// re-encodes the full interest set on every wait call, which is fine
// at the fd counts a single BadVPN process deals with (one socket per
// peer, plus the TAP device).
type pollPoller struct {
	regs map[int]Interest
}

func newPoller() (poller, error) {
	return &pollPoller{regs: make(map[int]Interest)}, nil
}

func (p *pollPoller) add(fd int, mask Interest)    { p.regs[fd] = mask }
func (p *pollPoller) modify(fd int, mask Interest) { p.regs[fd] = mask }
func (p *pollPoller) remove(fd int)                { delete(p.regs, fd) }

func (p *pollPoller) wait(timeout time.Duration, dst []readyFD) ([]readyFD, error) {
	if len(p.regs) == 0 {
		// poll(2) with no fds still honours the timeout, but avoid the
		// syscall entirely when there's truly nothing to wait on.
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return dst, nil
	}
	fds := make([]unix.PollFd, 0, len(p.regs))
	order := make([]int, 0, len(p.regs))
	for fd, mask := range p.regs {
		var events int16
		if mask&Readable != 0 {
			events |= unix.POLLIN
		}
		if mask&Writable != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		order = append(order, fd)
	}
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	for {
		_, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return dst, err
		}
		break
	}
	for i, pfd := range fds {
		var mask Interest
		if pfd.Revents&unix.POLLIN != 0 {
			mask |= Readable
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			mask |= Writable
		}
		if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			mask |= Err
		}
		if mask != 0 {
			dst = append(dst, readyFD{fd: order[i], mask: mask})
		}
	}
	return dst, nil
}
