// SPDX-License-Identifier: GPL-3.0-or-later

package headers

import (
	"fmt"

	"github.com/miekg/dns"
	"github.com/rbmk-project/pktbuf/packet"
)

// RemoveEthernet checks that pkt is an Ethernet frame, removes the
// header and the trailer and returns them. A frame with a wrong FCS
// causes an error wrapping [ErrChecksum].
func RemoveEthernet(pkt *packet.Packet) (*Ethernet, *EthernetTrailer, error) {
	if pkt.Size() < ethernetHeaderSize+4 {
		return nil, nil, fmt.Errorf("%w: %d bytes for an ethernet frame", ErrTruncated, pkt.Size())
	}
	trailer := &EthernetTrailer{}
	pkt.RemoveTrailer(trailer)
	if !trailer.CheckFCS(pkt) {
		return nil, nil, fmt.Errorf("%w: ethernet fcs 0x%08x", ErrChecksum, trailer.FCS)
	}
	header := &Ethernet{}
	pkt.RemoveHeader(header)
	return header, trailer, nil
}

// RemoveIPv4 checks that pkt starts with a valid IPv4 header, removes
// it and returns it. Bytes following the IPv4 payload, such as link
// layer padding, are removed as well.
func RemoveIPv4(pkt *packet.Packet) (*IPv4, error) {
	if pkt.Size() < ipv4HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes for an ipv4 header", ErrTruncated, pkt.Size())
	}
	var first [1]byte
	pkt.CopyData(first[:])
	if first[0] != 0x45 {
		return nil, fmt.Errorf("%w: ipv4 version/ihl byte 0x%02x", ErrUnsupported, first[0])
	}
	header := &IPv4{}
	pkt.PeekHeader(header)
	if !header.GoodChecksum {
		return nil, fmt.Errorf("%w: ipv4 checksum 0x%04x", ErrChecksum, header.Checksum)
	}
	if !header.GoodLength {
		return nil, fmt.Errorf("%w: ipv4 total length shorter than the header", ErrUnsupported)
	}
	if uint32(header.PayloadSize)+ipv4HeaderSize > pkt.Size() {
		return nil, fmt.Errorf("%w: ipv4 payload of %d bytes", ErrTruncated, header.PayloadSize)
	}
	pkt.RemoveHeader(header)
	if extra := pkt.Size() - uint32(header.PayloadSize); extra > 0 {
		pkt.RemoveAtEnd(extra)
	}
	return header, nil
}

// RemoveUDP checks that pkt starts with a valid UDP header, removes it
// and returns it. The ip header provides the addresses for the checksum.
func RemoveUDP(pkt *packet.Packet, ip *IPv4) (*UDP, error) {
	if pkt.Size() < udpHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes for a udp header", ErrTruncated, pkt.Size())
	}
	header := &UDP{Source: ip.Source, Destination: ip.Destination}
	pkt.PeekHeader(header)
	if uint32(header.Length) != pkt.Size() || header.Length < udpHeaderSize {
		return nil, fmt.Errorf("%w: udp length %d with %d bytes", ErrTruncated, header.Length, pkt.Size())
	}
	if !header.GoodChecksum {
		return nil, fmt.Errorf("%w: udp checksum 0x%04x", ErrChecksum, header.Checksum)
	}
	pkt.RemoveHeader(header)
	return header, nil
}

// RemoveDNS parses the remaining bytes of pkt as a DNS message.
func RemoveDNS(pkt *packet.Packet) (*dns.Msg, error) {
	header := &DNS{}
	pkt.RemoveHeader(header)
	if header.Err != nil {
		return nil, fmt.Errorf("headers: invalid dns message: %w", header.Err)
	}
	return header.Msg, nil
}
