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

package password_test

import (
	"net"
	"testing"
	"time"

	"github.com/facebook/badvpn-go/password"
	"github.com/facebook/badvpn-go/reactor"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newLoopbackListener creates a non-blocking, already-listen(2)-ing
// TCP socket on 127.0.0.1 bound to an ephemeral port, the shape
// password.NewListener expects its fd argument to already be in.
func newLoopbackListener(t *testing.T) (fd int, addr string) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })

	require.NoError(t, unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1))
	require.NoError(t, unix.Bind(fd, &unix.SockaddrInet4{Port: 0, Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(fd, 16))

	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	in4 := sa.(*unix.SockaddrInet4)
	return fd, (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: in4.Port}).String()
}

func TestListenerDispatchesOnPasswordMatch(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	fd, addr := newLoopbackListener(t)
	l := password.NewListener(r, fd, 0)

	var pass [8]byte
	copy(pass[:], "sekrit12")

	var gotFD int
	l.AddPassword(pass, func(clientFD int) {
		gotFD = clientFD
		r.Quit(0)
	})

	dialErr := make(chan error, 1)
	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			dialErr <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write(pass[:])
		dialErr <- err
		time.Sleep(50 * time.Millisecond) // keep the conn open past the handler firing
	}()

	safety := r.NewTimer(2*time.Second, func() { r.Quit(1) })
	safety.Schedule(time.Now().Add(2 * time.Second))

	code := r.Run()
	require.NoError(t, <-dialErr)
	require.Equal(t, 0, code, "listener must dispatch the connection once the password matches")
	require.NotZero(t, gotFD)
	unix.Close(gotFD)
}

func TestListenerClosesOnUnknownPassword(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	fd, addr := newLoopbackListener(t)
	l := password.NewListener(r, fd, 0)

	called := false
	var known [8]byte
	copy(known[:], "knownpwd")
	l.AddPassword(known, func(int) { called = true })

	go func() {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		defer conn.Close()
		var wrong [8]byte
		copy(wrong[:], "WRONGPWD")
		conn.Write(wrong[:])
		buf := make([]byte, 1)
		conn.Read(buf) // blocks until the server closes the connection
	}()

	safety := r.NewTimer(500*time.Millisecond, func() { r.Quit(0) })
	safety.Schedule(time.Now().Add(500 * time.Millisecond))

	r.Run()
	require.False(t, called, "an unknown password must never dispatch a handler")
}
