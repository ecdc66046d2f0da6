// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netdev contains the definitions shared by the simulated
network devices.

A [NetworkDevice] exchanges [*packet.Packet] containing IPv4 datagrams
through channels. Stacks, links and routers are devices, and a
[Filter] installed on a router inspects each routed [*Datagram].

Ownership of a packet passes to the receiver with the channel send.
*/
package netdev

import (
	"net/netip"

	"github.com/rbmk-project/pktbuf/packet"
)

// NetworkDevice is a network device to read/write [*packet.Packet].
type NetworkDevice interface {
	// Addresses returns the addresses routed to the device.
	Addresses() []netip.Addr

	// EOF returns a channel that is closed when the device is closed.
	EOF() <-chan struct{}

	// Input returns a channel to send [*packet.Packet] to the device.
	Input() chan<- *packet.Packet

	// Output returns a channel to receive [*packet.Packet] from the device.
	Output() <-chan *packet.Packet
}

// channelBuffer is the capacity of the channels of a device.
const channelBuffer = 256

// NewIOChannels returns the input and output channels for a device.
func NewIOChannels() (chan *packet.Packet, chan *packet.Packet) {
	return make(chan *packet.Packet, channelBuffer), make(chan *packet.Packet, channelBuffer)
}

// Target is the verdict of a [Filter].
type Target int

const (
	// ACCEPT lets the datagram continue.
	ACCEPT = Target(iota)

	// DROP discards the datagram.
	DROP
)

// String returns the iptables-like name of the target.
func (t Target) String() string {
	switch t {
	case ACCEPT:
		return "ACCEPT"
	case DROP:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

// Filter inspects and possibly modifies a routed [*Datagram].
//
// The returned packets, which must be complete IPv4 packets, are
// injected into the network before the datagram, if accepted.
type Filter interface {
	Filter(d *Datagram) (Target, []*packet.Packet)
}

// Pair returns two devices connected back to back: what is written to
// the input of one device is read from the output of the other one.
// Both devices report addrs as their addresses and never reach EOF.
//
// Devices that sit between a [NetworkDevice] and the rest of the
// network, such as links, use a pair to present themselves as a device
// while moving packets from and to the inner side.
func Pair(addrs ...netip.Addr) (outer, inner NetworkDevice) {
	input, output := NewIOChannels()
	base := &pairBase{addrs: addrs, input: input, output: output}
	return &outerDevice{base}, &innerDevice{base}
}

// pairBase is the common implementation of the devices returned by [Pair].
type pairBase struct {
	addrs  []netip.Addr
	input  chan *packet.Packet
	output chan *packet.Packet
}

func (pb *pairBase) Addresses() []netip.Addr {
	return append([]netip.Addr{}, pb.addrs...)
}

func (*pairBase) EOF() <-chan struct{} {
	return nil
}

// outerDevice preserves the normal channel direction.
type outerDevice struct {
	*pairBase
}

func (od *outerDevice) Input() chan<- *packet.Packet {
	return od.input
}

func (od *outerDevice) Output() <-chan *packet.Packet {
	return od.output
}

// innerDevice swaps the input and output channels.
type innerDevice struct {
	*pairBase
}

func (id *innerDevice) Input() chan<- *packet.Packet {
	return id.output
}

func (id *innerDevice) Output() <-chan *packet.Packet {
	return id.input
}
