// SPDX-License-Identifier: GPL-3.0-or-later

package headers

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/rbmk-project/pktbuf/typeid"
)

// IP protocol numbers.
const (
	IPProtocolTCP = 6
	IPProtocolUDP = 17
)

// ipv4HeaderSize is the size of an IPv4 header without options.
const ipv4HeaderSize = 20

// IPv4 flags.
const (
	IPv4DontFragment  = 1 << 1
	IPv4MoreFragments = 1 << 0
)

// IPv4 is an IPv4 header without options.
type IPv4 struct {
	// TOS is the type of service byte.
	TOS uint8

	// PayloadSize is the number of bytes following the header.
	PayloadSize uint16

	// Identification identifies the fragments of a datagram.
	Identification uint16

	// Flags contains the IPv4DontFragment and IPv4MoreFragments flags.
	Flags uint8

	// FragmentOffset is the offset of the fragment in 8-byte units.
	FragmentOffset uint16

	// TTL is the time to live.
	TTL uint8

	// Protocol is the protocol of the payload.
	Protocol uint8

	// Checksum is the header checksum. It is computed by Serialize
	// and read by Deserialize.
	Checksum uint16

	// Source is the source address.
	Source netip.Addr

	// Destination is the destination address.
	Destination netip.Addr

	// GoodChecksum is set by Deserialize when the checksum is valid.
	GoodChecksum bool

	// GoodLength is set by Deserialize when the total length field
	// covers at least the header. Otherwise, PayloadSize is zero.
	GoodLength bool
}

var _ packet.Header = &IPv4{}

// TypeID implements [packet.Header].
func (h *IPv4) TypeID() typeid.TypeID {
	return IPv4TypeID
}

// SerializedSize implements [packet.Header].
func (h *IPv4) SerializedSize() uint32 {
	return ipv4HeaderSize
}

// Serialize implements [packet.Header].
func (h *IPv4) Serialize(start buffer.Iterator) {
	begin := start
	start.WriteU8(0x45)
	start.WriteU8(h.TOS)
	start.WriteHtonU16(h.PayloadSize + ipv4HeaderSize)
	start.WriteHtonU16(h.Identification)
	start.WriteHtonU16(uint16(h.Flags)<<13 | h.FragmentOffset&0x1fff)
	start.WriteU8(h.TTL)
	start.WriteU8(h.Protocol)
	checksumAt := start
	start.WriteHtonU16(0)
	writeAddr4(&start, h.Source)
	writeAddr4(&start, h.Destination)
	h.Checksum = begin.CalculateIPChecksum(ipv4HeaderSize)
	checksumAt.WriteHtonU16(h.Checksum)
}

// writeAddr4 writes an IPv4 address, using 0.0.0.0 for invalid addresses.
func writeAddr4(it *buffer.Iterator, addr netip.Addr) {
	var raw [4]byte
	if addr.Is4() || addr.Is4In6() {
		raw = addr.Unmap().As4()
	}
	it.Write(raw[:])
}

// readAddr4 reads an IPv4 address.
func readAddr4(it *buffer.Iterator) netip.Addr {
	var raw [4]byte
	it.Read(raw[:])
	return netip.AddrFrom4(raw)
}

// Deserialize implements [packet.Header].
func (h *IPv4) Deserialize(start buffer.Iterator) uint32 {
	h.GoodChecksum = start.CalculateIPChecksum(ipv4HeaderSize) == 0
	start.ReadU8() // version and IHL
	h.TOS = start.ReadU8()
	totalLength := start.ReadNtohU16()
	h.GoodLength = totalLength >= ipv4HeaderSize
	h.PayloadSize = 0
	if h.GoodLength {
		h.PayloadSize = totalLength - ipv4HeaderSize
	}
	h.Identification = start.ReadNtohU16()
	flagsOffset := start.ReadNtohU16()
	h.Flags = uint8(flagsOffset >> 13)
	h.FragmentOffset = flagsOffset & 0x1fff
	h.TTL = start.ReadU8()
	h.Protocol = start.ReadU8()
	h.Checksum = start.ReadNtohU16()
	h.Source = readAddr4(&start)
	h.Destination = readAddr4(&start)
	return ipv4HeaderSize
}

// Print implements [packet.Header].
func (h *IPv4) Print(w io.Writer) {
	fmt.Fprintf(w, "tos 0x%x ttl %d id %d protocol %d offset (bytes) %d flags [%s] length: %d %s > %s",
		h.TOS, h.TTL, h.Identification, h.Protocol, uint32(h.FragmentOffset)*8,
		ipv4FlagsString(h.Flags), uint32(h.PayloadSize)+ipv4HeaderSize, h.Source, h.Destination)
}

// ipv4FlagsString returns a string representation of the IPv4 flags.
func ipv4FlagsString(flags uint8) string {
	switch {
	case flags&IPv4DontFragment != 0 && flags&IPv4MoreFragments != 0:
		return "DF MF"
	case flags&IPv4DontFragment != 0:
		return "DF"
	case flags&IPv4MoreFragments != 0:
		return "MF"
	default:
		return "none"
	}
}

// pseudoHeaderSum returns the partial checksum of the IPv4
// pseudo-header used by transport protocols.
func pseudoHeaderSum(src, dst netip.Addr, protocol uint8, length uint16) uint32 {
	var sum uint32
	for _, addr := range []netip.Addr{src, dst} {
		var raw [4]byte
		if addr.Is4() || addr.Is4In6() {
			raw = addr.Unmap().As4()
		}
		sum += uint32(raw[0])<<8 | uint32(raw[1])
		sum += uint32(raw[2])<<8 | uint32(raw[3])
	}
	sum += uint32(protocol)
	sum += uint32(length)
	return sum
}
