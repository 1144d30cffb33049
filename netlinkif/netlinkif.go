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

// Package netlinkif manages the Linux network-interface boundary (set
// link up/down, assign MTU, attach addresses, install routes) for the
// TUN/TAP device a badvpn-go peer pushes decrypted packets through,
// built on github.com/jsimonetti/rtnetlink/rtnl.
package netlinkif

import (
	"fmt"
	"net"

	"github.com/jsimonetti/rtnetlink/rtnl"
)

// ipv4Mask/ipv6Mask are the full-host netmasks used for
// point-to-point tunnel addresses.
const (
	ipv4Mask = 32
	ipv6Mask = 128
)

// SetUp brings the named interface up.
func SetUp(name string) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		return conn.LinkUp(link)
	})
}

// SetDown brings the named interface down.
func SetDown(name string) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		return conn.LinkDown(link)
	})
}

// SetMTU sets the link MTU; badvpn-client uses it to set the TUN/TAP
// device's MTU to the configured frame_mtu.
func SetMTU(name string, mtu int) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		return conn.LinkSetMTU(link, mtu)
	})
}

// AddAddr assigns addr (host-mask /32 or /128, the point-to-point
// convention) to the named interface, skipping the
// netlink call if it is already present.
func AddAddr(name string, addr net.IP) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		has, err := hasAddr(conn, link, addr)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
		return conn.AddrAdd(link, &net.IPNet{IP: addr, Mask: hostMask(addr)})
	})
}

// DelAddr removes addr from the named interface.
func DelAddr(name string, addr net.IP) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		return conn.AddrDel(link, &net.IPNet{IP: addr, Mask: hostMask(addr)})
	})
}

// AddRoute installs a route for dst via the named interface (the
// device's own link, no next-hop gateway — the standard shape for
// routing a subnet onto a TUN device).
func AddRoute(name string, dst *net.IPNet) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		return conn.RouteAdd(link, *dst, nil)
	})
}

// DelRoute removes a previously installed route.
func DelRoute(name string, dst *net.IPNet) error {
	return withLink(name, func(conn *rtnl.Conn, link *net.Interface) error {
		return conn.RouteDel(link, *dst)
	})
}

func hostMask(ip net.IP) net.IPMask {
	if v4 := ip.To4(); v4 != nil {
		return net.CIDRMask(ipv4Mask, ipv4Mask)
	}
	return net.CIDRMask(ipv6Mask, ipv6Mask)
}

func hasAddr(conn *rtnl.Conn, link *net.Interface, want net.IP) (bool, error) {
	addrs, err := conn.Addrs(link, 0)
	if err != nil {
		return false, fmt.Errorf("netlinkif: listing addresses: %w", err)
	}
	for _, a := range addrs {
		if a.IP.Equal(want) {
			return true, nil
		}
	}
	return false, nil
}

func withLink(name string, fn func(conn *rtnl.Conn, link *net.Interface) error) error {
	link, err := net.InterfaceByName(name)
	if err != nil {
		return fmt.Errorf("netlinkif: looking up interface %q: %w", name, err)
	}
	conn, err := rtnl.Dial(nil)
	if err != nil {
		return fmt.Errorf("netlinkif: dialing rtnetlink: %w", err)
	}
	defer conn.Close()
	return fn(conn, link)
}
