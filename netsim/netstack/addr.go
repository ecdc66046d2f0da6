//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// net.Addr implementation.
//

package netstack

import (
	"net"
	"net/netip"
)

// Addr represents a UDP address.
type Addr struct {
	// AddrPort is the endpoint address and port.
	AddrPort netip.AddrPort
}

// Ensure [*Addr] implements [net.Addr].
var _ net.Addr = &Addr{}

// Network implements [net.Addr].
func (sa *Addr) Network() string {
	return "udp"
}

// String implements [net.Addr].
func (sa *Addr) String() string {
	return sa.AddrPort.String()
}

// addrToAddrPort converts a [net.Addr] to a [netip.AddrPort].
//
// For [*Addr] and [*net.UDPAddr] addresses, returns their corresponding
// [netip.AddrPort] representation. Otherwise, it parses the string
// representation of the address, returning false on failure.
func addrToAddrPort(addr net.Addr) (netip.AddrPort, bool) {
	switch addr := addr.(type) {
	case nil:
		return netip.AddrPort{}, false
	case *Addr:
		return addr.AddrPort, true
	case *net.UDPAddr:
		return addr.AddrPort(), true
	}
	parsed, err := netip.ParseAddrPort(addr.String())
	return parsed, err == nil
}
