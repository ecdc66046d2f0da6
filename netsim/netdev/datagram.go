// SPDX-License-Identifier: GPL-3.0-or-later

package netdev

import (
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/rbmk-project/pktbuf/headers"
	"github.com/rbmk-project/pktbuf/packet"
)

// DefaultTTL is the TTL of the datagrams created by [NewDatagram].
const DefaultTTL = 64

// MaxPayloadSize is the maximum payload of a UDP datagram over IPv4.
const MaxPayloadSize = 65535 - 20 - 8

// identification generates the IPv4 identification field.
var identification atomic.Uint32

// Datagram is a UDP datagram carried by IPv4.
type Datagram struct {
	// IP is the IPv4 header.
	IP *headers.IPv4

	// UDP is the UDP header.
	UDP *headers.UDP

	// Payload contains the UDP payload and owns the byte tags.
	Payload *packet.Packet
}

// NewDatagram creates a [*Datagram] from src to dst carrying payload.
// The payload must not be larger than [MaxPayloadSize].
func NewDatagram(src, dst netip.AddrPort, payload *packet.Packet) *Datagram {
	return &Datagram{
		IP: &headers.IPv4{
			Identification: uint16(identification.Add(1)),
			TTL:            DefaultTTL,
			Protocol:       headers.IPProtocolUDP,
			Source:         src.Addr().Unmap(),
			Destination:    dst.Addr().Unmap(),
		},
		UDP: &headers.UDP{
			SourcePort:      src.Port(),
			DestinationPort: dst.Port(),
		},
		Payload: payload,
	}
}

// ParseDatagram removes the IPv4 and UDP headers from pkt, which
// becomes the payload of the returned [*Datagram].
func ParseDatagram(pkt *packet.Packet) (*Datagram, error) {
	ip, err := headers.RemoveIPv4(pkt)
	if err != nil {
		return nil, err
	}
	if IsFragment(ip) {
		return nil, fmt.Errorf("%w: ipv4 fragment", headers.ErrUnsupported)
	}
	return DecodeUDP(ip, pkt)
}

// DecodeUDP removes the UDP header from pkt, which must be the
// complete payload of the given IPv4 header.
func DecodeUDP(ip *headers.IPv4, pkt *packet.Packet) (*Datagram, error) {
	if ip.Protocol != headers.IPProtocolUDP {
		return nil, fmt.Errorf("%w: ip protocol %d", headers.ErrUnsupported, ip.Protocol)
	}
	udp, err := headers.RemoveUDP(pkt, ip)
	if err != nil {
		return nil, err
	}
	return &Datagram{IP: ip, UDP: udp, Payload: pkt}, nil
}

// IsFragment returns whether ip is the header of an IPv4 fragment.
func IsFragment(ip *headers.IPv4) bool {
	return ip.Flags&headers.IPv4MoreFragments != 0 || ip.FragmentOffset != 0
}

// Source returns the source address and port.
func (d *Datagram) Source() netip.AddrPort {
	return netip.AddrPortFrom(d.IP.Source, d.UDP.SourcePort)
}

// SetSource sets the source address and port.
func (d *Datagram) SetSource(addr netip.AddrPort) {
	d.IP.Source = addr.Addr().Unmap()
	d.UDP.SourcePort = addr.Port()
}

// Destination returns the destination address and port.
func (d *Datagram) Destination() netip.AddrPort {
	return netip.AddrPortFrom(d.IP.Destination, d.UDP.DestinationPort)
}

// SetDestination sets the destination address and port.
func (d *Datagram) SetDestination(addr netip.AddrPort) {
	d.IP.Destination = addr.Addr().Unmap()
	d.UDP.DestinationPort = addr.Port()
}

// Encapsulate adds the UDP and IPv4 headers to the payload and returns
// it. The returned packet takes ownership of the payload, therefore the
// [*Datagram] must not be used afterwards.
func (d *Datagram) Encapsulate() *packet.Packet {
	pkt := d.Payload
	d.UDP.Source = d.IP.Source
	d.UDP.Destination = d.IP.Destination
	pkt.AddHeader(d.UDP)
	d.IP.PayloadSize = uint16(pkt.Size())
	pkt.AddHeader(d.IP)
	d.Payload = nil
	return pkt
}

// String returns a tcpdump-like representation of the datagram.
func (d *Datagram) String() string {
	size := 0
	if d.Payload != nil {
		size = int(d.Payload.Size())
	}
	return fmt.Sprintf("%s -> %s udp ttl=%d length=%d", d.Source(), d.Destination(), d.IP.TTL, size)
}

// Destination returns the destination address of an encapsulated
// packet without modifying it.
func Destination(pkt *packet.Packet) (netip.Addr, bool) {
	if pkt.Size() < 20 {
		return netip.Addr{}, false
	}
	ip := &headers.IPv4{}
	pkt.PeekHeader(ip)
	return ip.Destination, true
}
