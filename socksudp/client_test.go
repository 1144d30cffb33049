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

package socksudp_test

import (
	"net"
	"testing"

	"github.com/facebook/badvpn-go/socksudp"
	"github.com/stretchr/testify/require"
)

func TestUDPHeaderRoundTripIPv4(t *testing.T) {
	target := &net.UDPAddr{IP: net.IPv4(203, 0, 113, 7), Port: 51820}
	buf, err := socksudp.EncodeUDPHeader(nil, target)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 1, 203, 0, 113, 7, 0x00, 0x00}[:4], buf[:4], "RSV/RSV/FRAG must be zero, ATYP=1 for IPv4")

	payload := []byte("datagram payload")
	wire := append(buf, payload...)

	got, n, err := socksudp.DecodeUDPHeader(wire)
	require.NoError(t, err)
	require.Equal(t, target.IP.To4(), got.IP.To4())
	require.Equal(t, target.Port, got.Port)
	require.Equal(t, payload, wire[n:])
}

func TestUDPHeaderRoundTripIPv6(t *testing.T) {
	target := &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}
	buf, err := socksudp.EncodeUDPHeader(nil, target)
	require.NoError(t, err)
	require.Equal(t, byte(4), buf[3], "ATYP must be 4 for IPv6")

	got, n, err := socksudp.DecodeUDPHeader(buf)
	require.NoError(t, err)
	require.Equal(t, target.IP.To16(), got.IP.To16())
	require.Equal(t, target.Port, got.Port)
	require.Equal(t, len(buf), n)
}

func TestDecodeUDPHeaderRejectsFragmentation(t *testing.T) {
	buf := []byte{0, 0, 1 /* frag != 0 */, 1, 1, 2, 3, 4, 0, 80}
	_, _, err := socksudp.DecodeUDPHeader(buf)
	require.Error(t, err)
}

func TestDecodeUDPHeaderRejectsShortInput(t *testing.T) {
	_, _, err := socksudp.DecodeUDPHeader([]byte{0, 0})
	require.Error(t, err)
}
