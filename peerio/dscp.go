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
	"fmt"
	"net"
	"os"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// setDSCP marks every outgoing datagram on fd with the given DSCP
// codepoint (0-63) so DataProto traffic can ride a priority queue
// across the carrier network. A duplicated file descriptor is used so
// the caller's fd stays owned by the reactor's registration
// bookkeeping; the duplicate is
// closed once the ipv4/ipv6 PacketConn wrapper has applied the option.
func setDSCP(fd int, v6 bool, dscp int) error {
	if dscp == 0 {
		return nil
	}
	dup, err := dupForDSCP(fd)
	if err != nil {
		return fmt.Errorf("peerio: dup for dscp: %w", err)
	}
	f := os.NewFile(uintptr(dup), "")
	defer f.Close()

	conn, err := net.FilePacketConn(f)
	if err != nil {
		return fmt.Errorf("peerio: FilePacketConn: %w", err)
	}
	defer conn.Close()

	tos := dscp << 2
	if v6 {
		return ipv6.NewPacketConn(conn).SetTrafficClass(tos)
	}
	return ipv4.NewPacketConn(conn).SetTOS(tos)
}
