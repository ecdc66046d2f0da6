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

// udpHeaderSize is the size of a UDP header.
const udpHeaderSize = 8

// UDP is a UDP header.
//
// The checksum covers the header, the payload following it and an
// IPv4 pseudo-header, so Serialize and Deserialize need to know the
// addresses of the datagram. When either address is invalid, the
// checksum is zero, which means "not computed".
type UDP struct {
	// SourcePort is the source port.
	SourcePort uint16

	// DestinationPort is the destination port.
	DestinationPort uint16

	// Length is the size of the header and the payload. It is
	// computed by Serialize and read by Deserialize.
	Length uint16

	// Checksum is computed by Serialize and read by Deserialize.
	Checksum uint16

	// Source is the source address used for the checksum.
	Source netip.Addr

	// Destination is the destination address used for the checksum.
	Destination netip.Addr

	// GoodChecksum is set by Deserialize when the checksum is valid or absent.
	GoodChecksum bool
}

var _ packet.Header = &UDP{}

// TypeID implements [packet.Header].
func (h *UDP) TypeID() typeid.TypeID {
	return UDPTypeID
}

// SerializedSize implements [packet.Header].
func (h *UDP) SerializedSize() uint32 {
	return udpHeaderSize
}

// hasAddrs returns whether the checksum can be computed.
func (h *UDP) hasAddrs() bool {
	return h.Source.IsValid() && h.Destination.IsValid()
}

// Serialize implements [packet.Header]. The payload must already be
// in the packet, since all the bytes from start onward are covered.
func (h *UDP) Serialize(start buffer.Iterator) {
	begin := start
	h.Length = uint16(start.Size())
	start.WriteHtonU16(h.SourcePort)
	start.WriteHtonU16(h.DestinationPort)
	start.WriteHtonU16(h.Length)
	checksumAt := start
	start.WriteHtonU16(0)
	h.Checksum = 0
	if h.hasAddrs() {
		initial := pseudoHeaderSum(h.Source, h.Destination, IPProtocolUDP, h.Length)
		h.Checksum = begin.CalculateIPChecksumWithInitial(h.Length, initial)
		if h.Checksum == 0 {
			h.Checksum = 0xffff
		}
		checksumAt.WriteHtonU16(h.Checksum)
	}
}

// Deserialize implements [packet.Header].
func (h *UDP) Deserialize(start buffer.Iterator) uint32 {
	begin := start
	h.SourcePort = start.ReadNtohU16()
	h.DestinationPort = start.ReadNtohU16()
	h.Length = start.ReadNtohU16()
	h.Checksum = start.ReadNtohU16()
	h.GoodChecksum = true
	if h.Checksum != 0 && h.hasAddrs() && uint32(h.Length) <= begin.Size() {
		initial := pseudoHeaderSum(h.Source, h.Destination, IPProtocolUDP, h.Length)
		h.GoodChecksum = begin.CalculateIPChecksumWithInitial(h.Length, initial) == 0
	}
	return udpHeaderSize
}

// Print implements [packet.Header].
func (h *UDP) Print(w io.Writer) {
	fmt.Fprintf(w, "length: %d %d > %d", h.Length, h.SourcePort, h.DestinationPort)
}
