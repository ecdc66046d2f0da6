// SPDX-License-Identifier: GPL-3.0-or-later

package tag

import (
	"encoding/binary"
	"math"

	"github.com/rbmk-project/common/runtimex"
)

// overflowMessage explains the most likely cause of a tag slot overflow.
const overflowMessage = "tag: access beyond the tag slot; check that " +
	"SerializedSize matches what Serialize writes"

// Buffer is a bounded cursor over the storage slot of a single tag.
//
// Values are in host order, which this package defines to be
// little-endian, since tags never leave the process.
type Buffer struct {
	data    []byte
	current int
	end     int
}

// NewBuffer returns a [Buffer] covering the whole storage.
func NewBuffer(storage []byte) Buffer {
	return Buffer{data: storage, end: len(storage)}
}

// Len returns the number of bytes between the cursor and the end.
func (b *Buffer) Len() int {
	return b.end - b.current
}

// TrimAtEnd shrinks the slot by trim bytes from the end, which is
// useful when a tag serializes fewer bytes than declared.
func (b *Buffer) TrimAtEnd(trim uint32) {
	runtimex.Assert(uint64(trim) <= uint64(b.end-b.current), overflowMessage)
	b.end -= int(trim)
}

// CopyFrom copies the remaining bytes of o at the cursor.
func (b *Buffer) CopyFrom(o Buffer) {
	b.Write(o.data[o.current:o.end])
}

// span returns the next size bytes and advances the cursor.
func (b *Buffer) span(size int) []byte {
	runtimex.Assert(size <= b.end-b.current, overflowMessage)
	out := b.data[b.current : b.current+size]
	b.current += size
	return out
}

// WriteU8 writes a byte.
func (b *Buffer) WriteU8(v uint8) {
	b.span(1)[0] = v
}

// WriteU16 writes a 16-bit value.
func (b *Buffer) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(b.span(2), v)
}

// WriteU32 writes a 32-bit value.
func (b *Buffer) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(b.span(4), v)
}

// WriteU64 writes a 64-bit value.
func (b *Buffer) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(b.span(8), v)
}

// WriteDouble writes a float64 using its IEEE 754 representation.
func (b *Buffer) WriteDouble(v float64) {
	b.WriteU64(math.Float64bits(v))
}

// Write writes data.
func (b *Buffer) Write(data []byte) {
	copy(b.span(len(data)), data)
}

// ReadU8 reads a byte.
func (b *Buffer) ReadU8() uint8 {
	return b.span(1)[0]
}

// ReadU16 reads a 16-bit value.
func (b *Buffer) ReadU16() uint16 {
	return binary.LittleEndian.Uint16(b.span(2))
}

// ReadU32 reads a 32-bit value.
func (b *Buffer) ReadU32() uint32 {
	return binary.LittleEndian.Uint32(b.span(4))
}

// ReadU64 reads a 64-bit value.
func (b *Buffer) ReadU64() uint64 {
	return binary.LittleEndian.Uint64(b.span(8))
}

// ReadDouble reads a float64 written by [*Buffer.WriteDouble].
func (b *Buffer) ReadDouble() float64 {
	return math.Float64frombits(b.ReadU64())
}

// Read fills dst.
func (b *Buffer) Read(dst []byte) {
	copy(dst, b.span(len(dst)))
}
