// SPDX-License-Identifier: GPL-3.0-or-later

package packet_test

import (
	"fmt"
	"io"

	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/rbmk-project/pktbuf/tag"
	"github.com/rbmk-project/pktbuf/typeid"
)

// fixedHeader is a header made of size bytes equal to value.
type fixedHeader struct {
	tid   typeid.TypeID
	size  uint32
	value uint8
}

var _ packet.Header = &fixedHeader{}

// newHeaderType registers a fixedHeader type with the given name and size.
func newHeaderType(name string, size uint32) typeid.TypeID {
	var tid typeid.TypeID
	tid = typeid.Register(name, func() any {
		return &fixedHeader{tid: tid, size: size}
	})
	return tid
}

var (
	header4TypeID = newHeaderType("packet_test.Header4", 4)
	header8TypeID = newHeaderType("packet_test.Header8", 8)
)

func newHeader4(value uint8) *fixedHeader {
	return &fixedHeader{tid: header4TypeID, size: 4, value: value}
}

func newHeader8(value uint8) *fixedHeader {
	return &fixedHeader{tid: header8TypeID, size: 8, value: value}
}

func (h *fixedHeader) TypeID() typeid.TypeID {
	return h.tid
}

func (h *fixedHeader) SerializedSize() uint32 {
	return h.size
}

func (h *fixedHeader) Serialize(start buffer.Iterator) {
	start.WriteU8N(h.value, h.size)
}

func (h *fixedHeader) Deserialize(start buffer.Iterator) uint32 {
	h.value = start.ReadU8()
	start.NextN(h.size - 1)
	return h.size
}

func (h *fixedHeader) Print(w io.Writer) {
	fmt.Fprintf(w, "value=%d", h.value)
}

// fixedTrailer is a two bytes trailer.
type fixedTrailer struct {
	value uint8
}

var _ packet.Trailer = &fixedTrailer{}

var trailerTypeID = typeid.Register("packet_test.Trailer2", func() any {
	return &fixedTrailer{}
})

func (t *fixedTrailer) TypeID() typeid.TypeID {
	return trailerTypeID
}

func (t *fixedTrailer) SerializedSize() uint32 {
	return 2
}

func (t *fixedTrailer) Serialize(end buffer.Iterator) {
	end.PrevN(2)
	end.WriteU8N(t.value, 2)
}

func (t *fixedTrailer) Deserialize(end buffer.Iterator) uint32 {
	end.PrevN(2)
	t.value = end.ReadU8()
	return 2
}

func (t *fixedTrailer) Print(w io.Writer) {
	fmt.Fprintf(w, "value=%d", t.value)
}

// valueTag is a tag containing a 32-bit value.
type valueTag struct {
	value uint32
}

var _ tag.Tag = &valueTag{}

var valueTagTypeID = typeid.Register("packet_test.ValueTag", func() any {
	return &valueTag{}
})

func (t *valueTag) TypeID() typeid.TypeID {
	return valueTagTypeID
}

func (t *valueTag) SerializedSize() uint32 {
	return 4
}

func (t *valueTag) Serialize(b *tag.Buffer) {
	b.WriteU32(t.value)
}

func (t *valueTag) Deserialize(b *tag.Buffer) {
	t.value = b.ReadU32()
}

func (t *valueTag) Print(w io.Writer) {
	fmt.Fprintf(w, "value=%d", t.value)
}

// markTag is a tag type registered without a constructor.
type markTag struct {
	valueTag
}

var markTagTypeID = typeid.Register("packet_test.MarkTag", nil)

func (t *markTag) TypeID() typeid.TypeID {
	return markTagTypeID
}
