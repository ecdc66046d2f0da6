// SPDX-License-Identifier: GPL-3.0-or-later

package buffer

import (
	"encoding/binary"

	"github.com/rbmk-project/common/runtimex"
)

const (
	// readErrorMessage explains the most likely cause of a read out of bounds.
	readErrorMessage = "buffer: attempted to read beyond the bounds of the " +
		"available buffer space; this usually indicates that a Deserialize " +
		"method is reading data which was not written by the matching " +
		"Serialize method"

	// writeErrorMessage explains the most likely cause of a write out of bounds.
	writeErrorMessage = "buffer: attempted to write outside of the space " +
		"reserved for this header or trailer, or inside the zero area; " +
		"check that SerializedSize matches what Serialize writes"
)

// Iterator is a cursor over the visible bytes of a [*Buffer].
//
// An Iterator is a value: copying it copies the cursor position. It
// remains valid as long as the [*Buffer] it was obtained from does not
// add bytes, since adding bytes may move the buffer to new storage.
type Iterator struct {
	// bytes is the physical storage of the buffer.
	bytes []byte

	// zeroStart is the virtual offset where the zero area begins.
	zeroStart uint32

	// zeroEnd is the virtual offset where the zero area ends.
	zeroEnd uint32

	// dataStart is the virtual offset of the first visible byte.
	dataStart uint32

	// dataEnd is the virtual offset one past the last visible byte.
	dataEnd uint32

	// current is the virtual offset of the cursor.
	current uint32
}

// Next moves the cursor forward by one byte.
func (i *Iterator) Next() {
	i.NextN(1)
}

// Prev moves the cursor backward by one byte.
func (i *Iterator) Prev() {
	i.PrevN(1)
}

// NextN moves the cursor forward by delta bytes.
func (i *Iterator) NextN(delta uint32) {
	runtimex.Assert(uint64(i.current)+uint64(delta) <= uint64(i.dataEnd), readErrorMessage)
	i.current += delta
}

// PrevN moves the cursor backward by delta bytes.
func (i *Iterator) PrevN(delta uint32) {
	runtimex.Assert(i.current >= i.dataStart+delta && i.current >= delta, readErrorMessage)
	i.current -= delta
}

// IsStart returns whether the cursor points to the first visible byte.
func (i *Iterator) IsStart() bool {
	return i.current == i.dataStart
}

// IsEnd returns whether the cursor points one past the last visible byte.
func (i *Iterator) IsEnd() bool {
	return i.current == i.dataEnd
}

// DistanceFrom returns the number of bytes between the two cursors,
// which must belong to the same [*Buffer].
func (i *Iterator) DistanceFrom(o Iterator) uint32 {
	if i.current > o.current {
		return i.current - o.current
	}
	return o.current - i.current
}

// Size returns the number of bytes between the cursor and the end.
func (i *Iterator) Size() uint32 {
	return i.dataEnd - i.current
}

// physical maps the virtual offset v, which must not be in
// the zero area, to an offset into the physical storage.
func (i *Iterator) physical(v uint32) uint32 {
	if v < i.zeroStart {
		return v
	}
	return v - (i.zeroEnd - i.zeroStart)
}

// inZeroArea returns whether the virtual offset v is in the zero area.
func (i *Iterator) inZeroArea(v uint32) bool {
	return v >= i.zeroStart && v < i.zeroEnd
}

// writableSpan returns the physical span for writing count bytes at
// the cursor, or nil when the bytes would cross the zero area.
func (i *Iterator) writableSpan(count uint32) []byte {
	runtimex.Assert(
		i.current >= i.dataStart && uint64(i.current)+uint64(count) <= uint64(i.dataEnd),
		writeErrorMessage,
	)
	end := i.current + count
	headOnly := end <= i.zeroStart
	tailOnly := i.current >= i.zeroEnd
	runtimex.Assert(count == 0 || headOnly || tailOnly, writeErrorMessage)
	start := i.physical(i.current)
	return i.bytes[start : start+count]
}

// readableSpan returns the physical span for reading count bytes at
// the cursor, or nil when the bytes touch the zero area.
func (i *Iterator) readableSpan(count uint32) []byte {
	runtimex.Assert(
		i.current >= i.dataStart && uint64(i.current)+uint64(count) <= uint64(i.dataEnd),
		readErrorMessage,
	)
	end := i.current + count
	if end <= i.zeroStart || i.current >= i.zeroEnd {
		start := i.physical(i.current)
		return i.bytes[start : start+count]
	}
	return nil
}

// WriteU8 writes a byte and advances the cursor.
func (i *Iterator) WriteU8(data uint8) {
	i.writableSpan(1)[0] = data
	i.current++
}

// WriteU8N writes count copies of data, which is useful for padding.
func (i *Iterator) WriteU8N(data uint8, count uint32) {
	span := i.writableSpan(count)
	for idx := range span {
		span[idx] = data
	}
	i.current += count
}

// WriteU16 writes a 16-bit value in host order, which this
// package defines to be little-endian.
func (i *Iterator) WriteU16(data uint16) {
	i.WriteHtolsbU16(data)
}

// WriteU32 writes a 32-bit value in host order.
func (i *Iterator) WriteU32(data uint32) {
	i.WriteHtolsbU32(data)
}

// WriteU64 writes a 64-bit value in host order.
func (i *Iterator) WriteU64(data uint64) {
	i.WriteHtolsbU64(data)
}

// WriteHtolsbU16 writes a 16-bit value in little-endian order.
func (i *Iterator) WriteHtolsbU16(data uint16) {
	binary.LittleEndian.PutUint16(i.writableSpan(2), data)
	i.current += 2
}

// WriteHtolsbU32 writes a 32-bit value in little-endian order.
func (i *Iterator) WriteHtolsbU32(data uint32) {
	binary.LittleEndian.PutUint32(i.writableSpan(4), data)
	i.current += 4
}

// WriteHtolsbU64 writes a 64-bit value in little-endian order.
func (i *Iterator) WriteHtolsbU64(data uint64) {
	binary.LittleEndian.PutUint64(i.writableSpan(8), data)
	i.current += 8
}

// WriteHtonU16 writes a 16-bit value in network (big-endian) order.
func (i *Iterator) WriteHtonU16(data uint16) {
	binary.BigEndian.PutUint16(i.writableSpan(2), data)
	i.current += 2
}

// WriteHtonU32 writes a 32-bit value in network order.
func (i *Iterator) WriteHtonU32(data uint32) {
	binary.BigEndian.PutUint32(i.writableSpan(4), data)
	i.current += 4
}

// WriteHtonU64 writes a 64-bit value in network order.
func (i *Iterator) WriteHtonU64(data uint64) {
	binary.BigEndian.PutUint64(i.writableSpan(8), data)
	i.current += 8
}

// Write copies data at the cursor and advances the cursor.
func (i *Iterator) Write(data []byte) {
	copy(i.writableSpan(uint32(len(data))), data)
	i.current += uint32(len(data))
}

// WriteRange copies the bytes between start and end, which must come
// from the same buffer, at the cursor. The source may be the buffer
// this iterator points into, provided the ranges do not overlap.
func (i *Iterator) WriteRange(start, end Iterator) {
	runtimex.Assert(start.current <= end.current, "buffer: inverted iterator range")
	src := start
	count := end.current - start.current
	if span := src.readableSpan(count); span != nil {
		i.Write(span)
		return
	}
	for ; count > 0; count-- {
		i.WriteU8(src.ReadU8())
	}
}

// ReadU8 reads a byte and advances the cursor.
func (i *Iterator) ReadU8() uint8 {
	runtimex.Assert(i.current >= i.dataStart && i.current < i.dataEnd, readErrorMessage)
	var value uint8
	if !i.inZeroArea(i.current) {
		value = i.bytes[i.physical(i.current)]
	}
	i.current++
	return value
}

// readInto fills dst with the bytes at the cursor and advances the cursor.
func (i *Iterator) readInto(dst []byte) {
	if span := i.readableSpan(uint32(len(dst))); span != nil {
		copy(dst, span)
		i.current += uint32(len(dst))
		return
	}
	for idx := range dst {
		dst[idx] = i.ReadU8()
	}
}

// ReadU16 reads a 16-bit value in host (little-endian) order.
func (i *Iterator) ReadU16() uint16 {
	return i.ReadLsbtohU16()
}

// ReadU32 reads a 32-bit value in host order.
func (i *Iterator) ReadU32() uint32 {
	return i.ReadLsbtohU32()
}

// ReadU64 reads a 64-bit value in host order.
func (i *Iterator) ReadU64() uint64 {
	return i.ReadLsbtohU64()
}

// ReadLsbtohU16 reads a 16-bit value in little-endian order.
func (i *Iterator) ReadLsbtohU16() uint16 {
	var buf [2]byte
	i.readInto(buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

// ReadLsbtohU32 reads a 32-bit value in little-endian order.
func (i *Iterator) ReadLsbtohU32() uint32 {
	var buf [4]byte
	i.readInto(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// ReadLsbtohU64 reads a 64-bit value in little-endian order.
func (i *Iterator) ReadLsbtohU64() uint64 {
	var buf [8]byte
	i.readInto(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// ReadNtohU16 reads a 16-bit value in network order.
func (i *Iterator) ReadNtohU16() uint16 {
	var buf [2]byte
	i.readInto(buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

// ReadNtohU32 reads a 32-bit value in network order.
func (i *Iterator) ReadNtohU32() uint32 {
	var buf [4]byte
	i.readInto(buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

// ReadNtohU64 reads a 64-bit value in network order.
func (i *Iterator) ReadNtohU64() uint64 {
	var buf [8]byte
	i.readInto(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

// Read fills dst with the bytes at the cursor and advances the cursor.
func (i *Iterator) Read(dst []byte) {
	i.readInto(dst)
}
