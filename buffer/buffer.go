// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package buffer implements [*Buffer], a byte buffer optimized for the
way network packets are built and parsed: protocol layers prepend
headers and append trailers while the payload stays where it is.

# Layout

A [*Buffer] is a window over storage that may be shared with other
buffers. The window is made of three consecutive regions:

	| start data | zero area | end data |

The zero area is virtual: it reads as zeroes and occupies no memory,
which makes creating large dummy payloads cheap. Headers are written
into the start data region and trailers into the end data region.

# Sharing

[*Buffer.Clone] and [*Buffer.CreateFragment] return buffers sharing
the same storage. The storage tracks the widest range ever written by
any of its buffers (the dirty range). A buffer extends in place only
when nobody else may be using the bytes it would claim; otherwise it
moves to new storage. Hence, adding bytes never corrupts what other
buffers see. Writing through an [Iterator] into bytes that are already
visible through other buffers is, instead, the caller's responsibility.

# Failures

Out-of-bounds reads and writes are programming errors and panic.
[*Buffer.AddAtStart] and [*Buffer.AddAtEnd] return false when the
resulting buffer would not be addressable using int32 offsets.
*/
package buffer

import (
	"math"

	"github.com/rbmk-project/common/runtimex"
)

const (
	// defaultHeadroom is the space reserved before the start data
	// when moving to new storage, so that further headers can be
	// prepended without copying.
	defaultHeadroom = 64

	// defaultTailroom is the space reserved after the end data
	// when moving to new storage while appending.
	defaultTailroom = 16

	// maxBufferSize bounds offsets so they fit into an int32.
	maxBufferSize = math.MaxInt32
)

// storage is the memory possibly shared by several [*Buffer].
type storage struct {
	// bytes contains the start data followed by the end data.
	bytes []byte

	// refs is the number of buffers that may be using bytes. It is
	// incremented when sharing and decremented when a buffer moves
	// away, so it never undercounts.
	refs int

	// dirtyStart is the lowest physical offset written by any buffer.
	dirtyStart uint32

	// dirtyEnd is one past the highest physical offset written by any buffer.
	dirtyEnd uint32
}

// newStorage allocates a new, unshared [*storage].
func newStorage(size uint32) *storage {
	return &storage{bytes: make([]byte, size), refs: 1}
}

// Buffer is a resizable byte buffer with cheap prepend and append.
//
// Offsets are virtual: the zero area counts towards offsets but not
// towards the physical storage. Use [New] or [NewEmpty] to construct.
//
// A [*Buffer] must not be copied by value; use [*Buffer.Clone].
type Buffer struct {
	// data is the possibly shared storage.
	data *storage

	// start is the virtual offset of the first visible byte.
	start uint32

	// zeroStart is the virtual offset where the zero area begins.
	zeroStart uint32

	// zeroEnd is the virtual offset where the zero area ends.
	zeroEnd uint32

	// end is the virtual offset one past the last visible byte.
	end uint32
}

// New creates a new [*Buffer] containing size zero bytes. The zero
// bytes are virtual and do not consume memory.
func New(size uint32) *Buffer {
	runtimex.Assert(
		uint64(size)+defaultHeadroom+defaultTailroom <= maxBufferSize,
		"buffer: size too large",
	)
	buf := &Buffer{data: newStorage(defaultHeadroom)}
	buf.start = defaultHeadroom
	buf.zeroStart = defaultHeadroom
	buf.zeroEnd = defaultHeadroom + size
	buf.end = buf.zeroEnd
	buf.data.dirtyStart = buf.start
	buf.data.dirtyEnd = buf.start
	return buf
}

// NewEmpty creates a new, empty [*Buffer].
func NewEmpty() *Buffer {
	return New(0)
}

// Size returns the number of visible bytes.
func (b *Buffer) Size() uint32 {
	return b.end - b.start
}

// zeroSize returns the size of the zero area.
func (b *Buffer) zeroSize() uint32 {
	return b.zeroEnd - b.zeroStart
}

// internalSize returns the number of physical bytes in the window.
func (b *Buffer) internalSize() uint32 {
	return b.Size() - b.zeroSize()
}

// internalEnd returns the physical offset one past the end data.
func (b *Buffer) internalEnd() uint32 {
	return b.end - b.zeroSize()
}

// CurrentStartOffset returns the virtual offset of the first visible
// byte. It changes when the buffer moves to new storage, which allows
// callers to keep byte ranges aligned with the visible bytes.
func (b *Buffer) CurrentStartOffset() int32 {
	return int32(b.start)
}

// CurrentEndOffset returns the virtual offset one past the last visible byte.
func (b *Buffer) CurrentEndOffset() int32 {
	return int32(b.end)
}

// canGrow returns whether growing by count bytes keeps all offsets
// within the int32 range.
func (b *Buffer) canGrow(count uint32) bool {
	limit := uint64(maxBufferSize)
	return uint64(b.end)+uint64(count) <= limit &&
		uint64(b.Size())+uint64(count)+defaultHeadroom+defaultTailroom <= limit
}

// relocate moves the window to new storage with front free bytes
// before the start data and back free bytes after the end data.
func (b *Buffer) relocate(front, back uint32) {
	internal := b.internalSize()
	ndata := newStorage(front + internal + back)
	copy(ndata.bytes[front:], b.data.bytes[b.start:b.internalEnd()])
	b.release()
	b.data = ndata

	// Shift all the virtual offsets so that start becomes front.
	delta := int64(front) - int64(b.start)
	b.start = uint32(int64(b.start) + delta)
	b.zeroStart = uint32(int64(b.zeroStart) + delta)
	b.zeroEnd = uint32(int64(b.zeroEnd) + delta)
	b.end = uint32(int64(b.end) + delta)
	ndata.dirtyStart = b.start
	ndata.dirtyEnd = b.internalEnd()
}

// AddAtStart makes count more bytes visible before the current start.
//
// The new bytes have unspecified content and the caller is expected
// to overwrite them. The return value is false, and the buffer is
// unchanged, if the buffer cannot grow any further.
func (b *Buffer) AddAtStart(count uint32) bool {
	if !b.canGrow(count) {
		return false
	}
	owned := b.data.refs == 1 || b.start == b.data.dirtyStart
	if b.start < count || !owned {
		b.relocate(count+defaultHeadroom, 0)
	}
	b.start -= count
	b.data.dirtyStart = b.start
	return true
}

// AddAtEnd makes count more bytes visible after the current end.
//
// The new bytes have unspecified content and the caller is expected
// to overwrite them. The return value is false, and the buffer is
// unchanged, if the buffer cannot grow any further.
func (b *Buffer) AddAtEnd(count uint32) bool {
	if !b.canGrow(count) {
		return false
	}
	owned := b.data.refs == 1 || b.internalEnd() == b.data.dirtyEnd
	fits := uint64(b.internalEnd())+uint64(count) <= uint64(len(b.data.bytes))
	if !fits || !owned {
		b.relocate(defaultHeadroom, count+defaultTailroom)
	}
	b.end += count
	b.data.dirtyEnd = b.internalEnd()
	return true
}

// AddBufferAtEnd appends the visible bytes of other to this buffer
// without modifying other. When both buffers allow it, the zero area
// of other is merged into the zero area of this buffer.
func (b *Buffer) AddBufferAtEnd(other *Buffer) {
	src := other.Clone()
	defer src.release()
	if b.data.refs == 1 &&
		b.end == b.zeroEnd &&
		b.internalEnd() == b.data.dirtyEnd &&
		src.start == src.zeroStart &&
		src.zeroSize() > 0 &&
		b.canGrow(src.Size()) {
		b.zeroEnd += src.zeroSize()
		b.end = b.zeroEnd
		tail := src.end - src.zeroEnd
		runtimex.Assert(b.AddAtEnd(tail), "buffer: cannot grow")
		dst := b.End()
		dst.PrevN(tail)
		from := src.End()
		from.PrevN(tail)
		dst.WriteRange(from, src.End())
		return
	}
	count := src.Size()
	runtimex.Assert(b.AddAtEnd(count), "buffer: cannot grow")
	dst := b.End()
	dst.PrevN(count)
	dst.WriteRange(src.Begin(), src.End())
}

// RemoveAtStart hides count bytes from the start of the buffer. Removing
// more bytes than available leaves the buffer empty.
func (b *Buffer) RemoveAtStart(count uint32) {
	newStart := uint64(b.start) + uint64(count)
	switch {
	case newStart <= uint64(b.zeroStart):
		// only remove start data
		b.start = uint32(newStart)

	case newStart <= uint64(b.zeroEnd):
		// remove start data and part of the zero area
		delta := uint32(newStart) - b.zeroStart
		b.start = b.zeroStart
		b.zeroEnd -= delta
		b.end -= delta

	case newStart <= uint64(b.end):
		// remove start data, zero area and part of end data
		zs := b.zeroSize()
		b.start = uint32(newStart) - zs
		b.end -= zs
		b.zeroStart = b.start
		b.zeroEnd = b.start

	default:
		// remove everything
		b.end -= b.zeroSize()
		b.start = b.end
		b.zeroStart = b.end
		b.zeroEnd = b.end
	}
}

// RemoveAtEnd hides count bytes from the end of the buffer. Removing
// more bytes than available leaves the buffer empty.
func (b *Buffer) RemoveAtEnd(count uint32) {
	newEnd := b.end - min(count, b.Size())
	switch {
	case newEnd > b.zeroEnd:
		// only remove end data
		b.end = newEnd

	case newEnd > b.zeroStart:
		// remove end data and part of the zero area
		b.end = newEnd
		b.zeroEnd = newEnd

	case newEnd > b.start:
		// remove end data, zero area and part of start data
		b.end = newEnd
		b.zeroEnd = newEnd
		b.zeroStart = newEnd

	default:
		// remove everything
		b.end = b.start
		b.zeroEnd = b.start
		b.zeroStart = b.start
	}
}

// Clone returns a new [*Buffer] sharing storage with this buffer.
func (b *Buffer) Clone() *Buffer {
	b.data.refs++
	return &Buffer{
		data:      b.data,
		start:     b.start,
		zeroStart: b.zeroStart,
		zeroEnd:   b.zeroEnd,
		end:       b.end,
	}
}

// release tells the storage that this buffer no longer uses it.
func (b *Buffer) release() {
	b.data.refs--
}

// CreateFragment returns a new [*Buffer] sharing storage with this
// buffer and showing only the [start, start+length) visible bytes.
func (b *Buffer) CreateFragment(start, length uint32) *Buffer {
	runtimex.Assert(
		uint64(start)+uint64(length) <= uint64(b.Size()),
		"buffer: fragment exceeds the buffer size",
	)
	frag := b.Clone()
	frag.RemoveAtStart(start)
	frag.RemoveAtEnd(b.Size() - (start + length))
	return frag
}

// CreateFullCopy returns a new [*Buffer] with its own storage where
// the zero area, if any, has been replaced by real zero bytes.
func (b *Buffer) CreateFullCopy() *Buffer {
	size := b.Size()
	ndata := newStorage(defaultHeadroom + size + defaultTailroom)
	out := &Buffer{
		data:      ndata,
		start:     defaultHeadroom,
		zeroStart: defaultHeadroom + size,
		zeroEnd:   defaultHeadroom + size,
		end:       defaultHeadroom + size,
	}
	ndata.dirtyStart = out.start
	ndata.dirtyEnd = out.end
	b.copyTo(ndata.bytes[out.start:out.end])
	return out
}

// copyTo copies the visible bytes into dst, which must be large enough.
func (b *Buffer) copyTo(dst []byte) int {
	head := b.data.bytes[b.start:b.zeroStart]
	count := copy(dst, head)
	zero := min(b.zeroSize(), uint32(len(dst)-count))
	clear(dst[count : count+int(zero)])
	count += int(zero)
	tail := b.data.bytes[b.zeroStart:b.internalEnd()]
	count += copy(dst[count:], tail)
	return count
}

// CopyData copies up to len(dst) visible bytes into dst and returns
// the number of bytes copied.
func (b *Buffer) CopyData(dst []byte) int {
	return b.copyTo(dst)
}

// Bytes returns a copy of the visible bytes.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, b.Size())
	b.copyTo(out)
	return out
}

// PeekData returns the visible bytes without copying them. If the
// buffer has a zero area, the buffer first moves to new storage where
// the zero area is materialized, which changes the current offsets.
//
// The returned slice must be treated as read-only.
func (b *Buffer) PeekData() []byte {
	if b.zeroSize() > 0 {
		full := b.CreateFullCopy()
		b.release()
		*b = *full
	}
	return b.data.bytes[b.start:b.end]
}

// Begin returns an [Iterator] pointing to the first visible byte.
func (b *Buffer) Begin() Iterator {
	return b.newIterator(b.start)
}

// End returns an [Iterator] pointing one past the last visible byte.
func (b *Buffer) End() Iterator {
	return b.newIterator(b.end)
}

// newIterator returns an [Iterator] at the given virtual offset.
func (b *Buffer) newIterator(current uint32) Iterator {
	return Iterator{
		bytes:     b.data.bytes,
		zeroStart: b.zeroStart,
		zeroEnd:   b.zeroEnd,
		dataStart: b.start,
		dataEnd:   b.end,
		current:   current,
	}
}
