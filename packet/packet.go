// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package packet implements [*Packet], the unit of simulated network data.

A [*Packet] contains payload bytes, the protocol headers and trailers
wrapping the payload, and out-of-band tags. Protocol layers encapsulate
by calling [*Packet.AddHeader] and [*Packet.AddTrailer] innermost first
and decapsulate by calling [*Packet.RemoveHeader] and
[*Packet.RemoveTrailer] outermost first.

# Sharing

Packets are passed around as pointers. [*Packet.Copy] and
[*Packet.CreateFragment] return packets sharing storage with the
original packet. Adding and removing headers and trailers on one of
them never changes what the others contain.

# Metadata

By default, a packet does not remember which headers and trailers it
contains. Call [EnablePrinting] or [EnableChecking] (or [Configure])
before creating the first packet to make [*Packet.Print] and
[*Packet.BeginItem] describe the packet structure.

# Failures

Removing a header that is not there is a programming error. Without
checking, the header reads whatever bytes are at the start of the
packet. With checking, the program panics.
*/
package packet

import (
	"context"
	"encoding"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/buffer"
)

// uidCounter generates packet unique identifiers.
var uidCounter atomic.Uint64

// nextUID returns the next packet unique identifier.
func nextUID() uint64 {
	return uidCounter.Add(1) - 1
}

// growthFailedMessage is the panic message when a buffer cannot grow.
const growthFailedMessage = "packet: the packet is too large to grow any further"

// Packet is a network packet. Construct using [New], [NewEmpty], or [NewFromBytes].
type Packet struct {
	buffer     *buffer.Buffer
	byteTags   byteTagList
	packetTags packetTagList
	metadata   metadata
	uid        uint64
	logger     *slog.Logger
}

var (
	_ encoding.BinaryMarshaler   = &Packet{}
	_ encoding.BinaryUnmarshaler = &Packet{}
)

// New creates a new [*Packet] with size zero bytes of payload. The
// zero bytes do not consume memory until written to.
func New(size uint32) *Packet {
	s := settings()
	pkt := &Packet{
		buffer:   buffer.New(size),
		metadata: newMetadata(s, size),
		uid:      nextUID(),
		logger:   s.Logger,
	}
	pkt.log("newPacket", slog.Uint64("size", uint64(size)))
	return pkt
}

// NewEmpty creates a new empty [*Packet].
func NewEmpty() *Packet {
	return New(0)
}

// NewFromBytes creates a new [*Packet] whose payload is a copy of data.
func NewFromBytes(data []byte) *Packet {
	pkt := New(0)
	size := uint32(len(data))
	runtimex.Assert(pkt.buffer.AddAtStart(size), growthFailedMessage)
	start := pkt.buffer.Begin()
	start.Write(data)
	pkt.metadata.reset(size)
	return pkt
}

// log emits a debug message when logging is enabled.
func (p *Packet) log(msg string, attrs ...slog.Attr) {
	if p.logger == nil {
		return
	}
	attrs = append(attrs, slog.Uint64("uid", p.uid))
	p.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// UID returns the packet unique identifier.
func (p *Packet) UID() uint64 {
	return p.uid
}

// Size returns the number of bytes in the packet.
func (p *Packet) Size() uint32 {
	return p.buffer.Size()
}

// AddHeader serializes the header in front of the packet.
func (p *Packet) AddHeader(h Header) {
	size := h.SerializedSize()
	orgStart := p.buffer.CurrentStartOffset()
	runtimex.Assert(p.buffer.AddAtStart(size), growthFailedMessage)
	newStart := p.buffer.CurrentStartOffset()
	p.byteTags.AddAtStart(newStart+int32(size)-orgStart, newStart+int32(size))
	h.Serialize(p.buffer.Begin())
	p.metadata.addHeader(h.TypeID(), size)
	p.log("addHeader", slog.String("typeName", h.TypeID().String()), slog.Uint64("size", uint64(size)))
}

// RemoveHeader deserializes the header at the front of the packet into
// h, removes it from the packet and returns the number of bytes removed.
func (p *Packet) RemoveHeader(h Header) uint32 {
	size := h.Deserialize(p.buffer.Begin())
	p.removeBytesAtStart(size)
	p.metadata.removeHeader(h.TypeID(), size, p.Size())
	p.log("removeHeader", slog.String("typeName", h.TypeID().String()), slog.Uint64("size", uint64(size)))
	return size
}

// PeekHeader deserializes the header at the front of the packet into h
// and returns its size without removing it from the packet.
func (p *Packet) PeekHeader(h Header) uint32 {
	return h.Deserialize(p.buffer.Begin())
}

// AddTrailer serializes the trailer at the end of the packet.
func (p *Packet) AddTrailer(t Trailer) {
	size := t.SerializedSize()
	p.grow(size)
	t.Serialize(p.buffer.End())
	p.metadata.addTrailer(t.TypeID(), size)
	p.log("addTrailer", slog.String("typeName", t.TypeID().String()), slog.Uint64("size", uint64(size)))
}

// grow adds size bytes at the end of the buffer and realigns the tags.
func (p *Packet) grow(size uint32) {
	orgStart := p.buffer.CurrentStartOffset()
	runtimex.Assert(p.buffer.AddAtEnd(size), growthFailedMessage)
	p.byteTags.AddAtEnd(p.buffer.CurrentStartOffset()-orgStart, p.buffer.CurrentEndOffset()-int32(size))
}

// RemoveTrailer deserializes the trailer at the end of the packet into
// t, removes it from the packet and returns the number of bytes removed.
func (p *Packet) RemoveTrailer(t Trailer) uint32 {
	size := t.Deserialize(p.buffer.End())
	p.buffer.RemoveAtEnd(size)
	p.metadata.removeTrailer(t.TypeID(), size, p.Size())
	p.log("removeTrailer", slog.String("typeName", t.TypeID().String()), slog.Uint64("size", uint64(size)))
	return size
}

// PeekTrailer deserializes the trailer at the end of the packet into t
// and returns its size without removing it from the packet.
func (p *Packet) PeekTrailer(t Trailer) uint32 {
	return t.Deserialize(p.buffer.End())
}

// AddPaddingAtEnd appends size zero bytes to the packet.
func (p *Packet) AddPaddingAtEnd(size uint32) {
	p.grow(size)
	end := p.buffer.End()
	end.PrevN(size)
	end.WriteU8N(0, size)
	p.metadata.addPaddingAtEnd(size)
}

// AddAtEnd appends the content and the tags of other, which is not modified.
func (p *Packet) AddAtEnd(other *Packet) {
	otherTags := other.byteTags
	otherMetadata := other.metadata
	otherSize := other.Size()
	otherEnd := other.buffer.CurrentEndOffset()
	orgStart := p.buffer.CurrentStartOffset()

	p.buffer.AddBufferAtEnd(other.buffer)

	newEnd := p.buffer.CurrentEndOffset()
	junction := newEnd - int32(otherSize)
	p.byteTags.AddAtEnd(p.buffer.CurrentStartOffset()-orgStart, junction)
	otherTags.AddAtStart(newEnd-otherEnd, junction)
	p.byteTags.AddList(otherTags.List)
	p.metadata.addAtEnd(otherMetadata)
	p.log("addAtEnd", slog.Uint64("otherUid", other.uid), slog.Uint64("size", uint64(otherSize)))
}

// RemoveAtStart removes size bytes from the start of the packet.
func (p *Packet) RemoveAtStart(size uint32) {
	p.removeBytesAtStart(size)
	p.metadata.removeAtStart(size)
}

// removeBytesAtStart removes size bytes from the buffer and realigns
// the tags, since dropping zero bytes shifts the offsets that follow.
func (p *Packet) removeBytesAtStart(size uint32) {
	expected := p.buffer.CurrentStartOffset() + int32(min(size, p.Size()))
	p.buffer.RemoveAtStart(size)
	p.byteTags.realign(expected, p.buffer.CurrentStartOffset())
}

// RemoveAtEnd removes size bytes from the end of the packet.
func (p *Packet) RemoveAtEnd(size uint32) {
	p.buffer.RemoveAtEnd(size)
	p.metadata.removeAtEnd(size)
}

// CreateFragment returns a new [*Packet] containing length bytes
// starting at offset start. The fragment shares storage and tags with
// the original packet and has its own unique identifier.
func (p *Packet) CreateFragment(start, length uint32) *Packet {
	frag := &Packet{
		buffer:     p.buffer.CreateFragment(start, length),
		byteTags:   p.byteTags,
		packetTags: p.packetTags,
		metadata:   p.metadata.createFragment(start, p.Size()-(start+length)),
		uid:        nextUID(),
		logger:     p.logger,
	}
	expected := p.buffer.CurrentStartOffset() + int32(start)
	frag.byteTags.realign(expected, frag.buffer.CurrentStartOffset())
	p.log("createFragment", slog.Uint64("fragmentUid", frag.uid),
		slog.Uint64("start", uint64(start)), slog.Uint64("length", uint64(length)))
	return frag
}

// Copy returns a logically independent copy of the packet with a new
// unique identifier. Storage is shared until either packet changes.
func (p *Packet) Copy() *Packet {
	cpy := &Packet{
		buffer:     p.buffer.Clone(),
		byteTags:   p.byteTags,
		packetTags: p.packetTags,
		metadata:   p.metadata,
		uid:        nextUID(),
		logger:     p.logger,
	}
	p.log("copy", slog.Uint64("copyUid", cpy.uid))
	return cpy
}

// Serialize returns a standalone [*buffer.Buffer] containing the
// bytes of the packet. Tags are not part of the result.
func (p *Packet) Serialize() *buffer.Buffer {
	return p.buffer.CreateFullCopy()
}

// Deserialize replaces the content of the packet with the bytes of buf,
// which the packet does not modify. Tags and metadata are reset.
func (p *Packet) Deserialize(buf *buffer.Buffer) {
	p.buffer = buf.Clone()
	p.byteTags.RemoveAll()
	p.packetTags = packetTagList{}
	p.metadata.reset(p.Size())
}

// MarshalBinary implements [encoding.BinaryMarshaler] using the
// compact layout of [*buffer.Buffer.Serialize].
func (p *Packet) MarshalBinary() ([]byte, error) {
	return p.buffer.Serialize(), nil
}

// UnmarshalBinary implements [encoding.BinaryUnmarshaler].
func (p *Packet) UnmarshalBinary(data []byte) error {
	buf, err := buffer.Deserialize(data)
	if err != nil {
		return fmt.Errorf("packet: cannot unmarshal: %w", err)
	}
	if p.buffer == nil {
		s := settings()
		p.uid = nextUID()
		p.logger = s.Logger
		p.metadata = newMetadata(s, 0)
	}
	p.Deserialize(buf)
	return nil
}

// PeekData returns the bytes of the packet without copying them. The
// returned slice must be treated as read-only and is valid until the
// packet changes.
func (p *Packet) PeekData() []byte {
	oldStart := p.buffer.CurrentStartOffset()
	data := p.buffer.PeekData()
	newStart := p.buffer.CurrentStartOffset()
	if newStart != oldStart {
		p.byteTags.AddAtStart(newStart-oldStart, newStart)
	}
	return data
}

// CopyData copies up to len(dst) bytes of the packet into dst and
// returns the number of bytes copied.
func (p *Packet) CopyData(dst []byte) int {
	return p.buffer.CopyData(dst)
}

// Bytes returns a copy of the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.buffer.Bytes()
}

// BeginItem returns an [ItemIterator] over the headers, trailers and
// payload of the packet. The iterator is empty unless printing or
// checking has been enabled.
func (p *Packet) BeginItem() ItemIterator {
	return ItemIterator{items: p.metadata.items, buffer: p.buffer}
}
