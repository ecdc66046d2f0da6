// SPDX-License-Identifier: GPL-3.0-or-later

package headers

import (
	"fmt"
	"hash/crc32"
	"io"
	"net"

	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/rbmk-project/pktbuf/typeid"
)

// EtherTypeIPv4 is the EtherType of IPv4 packets.
const EtherTypeIPv4 = 0x0800

// ethernetHeaderSize is the size of an Ethernet II header.
const ethernetHeaderSize = 14

// Ethernet is an Ethernet II header.
type Ethernet struct {
	// Destination is the destination MAC address.
	Destination net.HardwareAddr

	// Source is the source MAC address.
	Source net.HardwareAddr

	// EtherType is the type of the payload.
	EtherType uint16
}

var _ packet.Header = &Ethernet{}

// TypeID implements [packet.Header].
func (h *Ethernet) TypeID() typeid.TypeID {
	return EthernetTypeID
}

// SerializedSize implements [packet.Header].
func (h *Ethernet) SerializedSize() uint32 {
	return ethernetHeaderSize
}

// Serialize implements [packet.Header].
func (h *Ethernet) Serialize(start buffer.Iterator) {
	writeMAC(&start, h.Destination)
	writeMAC(&start, h.Source)
	start.WriteHtonU16(h.EtherType)
}

// writeMAC writes a six bytes MAC address, padding short addresses with zeroes.
func writeMAC(it *buffer.Iterator, addr net.HardwareAddr) {
	var mac [6]byte
	copy(mac[:], addr)
	it.Write(mac[:])
}

// readMAC reads a six bytes MAC address.
func readMAC(it *buffer.Iterator) net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	it.Read(mac)
	return mac
}

// Deserialize implements [packet.Header].
func (h *Ethernet) Deserialize(start buffer.Iterator) uint32 {
	h.Destination = readMAC(&start)
	h.Source = readMAC(&start)
	h.EtherType = start.ReadNtohU16()
	return ethernetHeaderSize
}

// Print implements [packet.Header].
func (h *Ethernet) Print(w io.Writer) {
	fmt.Fprintf(w, "length/type=0x%x, source=%s, destination=%s", h.EtherType, h.Source, h.Destination)
}

// EthernetTrailer is the frame check sequence closing an Ethernet frame.
type EthernetTrailer struct {
	// FCS is the CRC-32 of the frame.
	FCS uint32
}

var _ packet.Trailer = &EthernetTrailer{}

// CalcFCS sets the FCS to the CRC-32 of the bytes of pkt.
func (t *EthernetTrailer) CalcFCS(pkt *packet.Packet) {
	t.FCS = crc32.ChecksumIEEE(pkt.Bytes())
}

// CheckFCS returns whether the FCS matches the bytes of pkt, from
// which the trailer has already been removed.
func (t *EthernetTrailer) CheckFCS(pkt *packet.Packet) bool {
	return t.FCS == crc32.ChecksumIEEE(pkt.Bytes())
}

// TypeID implements [packet.Trailer].
func (t *EthernetTrailer) TypeID() typeid.TypeID {
	return EthernetTrailerTypeID
}

// SerializedSize implements [packet.Trailer].
func (t *EthernetTrailer) SerializedSize() uint32 {
	return 4
}

// Serialize implements [packet.Trailer]. The FCS goes on the wire least
// significant byte first.
func (t *EthernetTrailer) Serialize(end buffer.Iterator) {
	end.PrevN(4)
	end.WriteHtolsbU32(t.FCS)
}

// Deserialize implements [packet.Trailer].
func (t *EthernetTrailer) Deserialize(end buffer.Iterator) uint32 {
	end.PrevN(4)
	t.FCS = end.ReadLsbtohU32()
	return 4
}

// Print implements [packet.Trailer].
func (t *EthernetTrailer) Print(w io.Writer) {
	fmt.Fprintf(w, "fcs=0x%08x", t.FCS)
}
