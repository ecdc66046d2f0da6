// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/rbmk-project/pktbuf/typeid"
)

// ItemType is the type of an [Item].
type ItemType int

const (
	// ItemPayload is raw payload.
	ItemPayload = ItemType(iota)

	// ItemHeader is a [Header].
	ItemHeader

	// ItemTrailer is a [Trailer].
	ItemTrailer
)

// String implements [fmt.Stringer].
func (t ItemType) String() string {
	switch t {
	case ItemPayload:
		return "payload"

	case ItemHeader:
		return "header"

	case ItemTrailer:
		return "trailer"

	default:
		return fmt.Sprintf("ItemType(%d)", int(t))
	}
}

// record describes a chunk of bytes inside a packet.
type record struct {
	typ              ItemType
	tid              typeid.TypeID
	size             uint32
	chunk            uint64
	trimmedFromStart uint32
	trimmedFromEnd   uint32
}

// currentSize returns the number of bytes of the record still in the packet.
func (r record) currentSize() uint32 {
	return r.size - r.trimmedFromStart - r.trimmedFromEnd
}

// isFragment returns whether bytes of the record have been removed.
func (r record) isFragment() bool {
	return r.trimmedFromStart != 0 || r.trimmedFromEnd != 0
}

// chunkCounter assigns a unique identity to each chunk, which allows
// merging fragments of the same chunk back together.
var chunkCounter atomic.Uint64

// metadata tracks the headers, trailers and payload of a packet.
//
// The items slice is never modified in place because it is shared
// between copies of the same packet.
type metadata struct {
	enabled  bool
	checking bool
	items    []record
}

// newMetadata returns metadata for a packet containing size payload bytes.
func newMetadata(s *Settings, size uint32) metadata {
	md := metadata{enabled: s.Printing, checking: s.Checking}
	md.reset(size)
	return md
}

// reset forgets all the chunks and describes size payload bytes.
func (md *metadata) reset(size uint32) {
	md.items = nil
	if md.enabled && size > 0 {
		md.items = []record{md.newRecord(ItemPayload, 0, size)}
	}
}

// newRecord returns a new untrimmed record.
func (md *metadata) newRecord(typ ItemType, tid typeid.TypeID, size uint32) record {
	return record{typ: typ, tid: tid, size: size, chunk: chunkCounter.Add(1)}
}

// addHeader records a header prepended to the packet.
func (md *metadata) addHeader(tid typeid.TypeID, size uint32) {
	if !md.enabled {
		return
	}
	md.items = append([]record{md.newRecord(ItemHeader, tid, size)}, md.items...)
}

// addTrailer records a trailer appended to the packet.
func (md *metadata) addTrailer(tid typeid.TypeID, size uint32) {
	if !md.enabled {
		return
	}
	md.items = append(slices.Clip(md.items), md.newRecord(ItemTrailer, tid, size))
}

// addPaddingAtEnd records size payload bytes appended to the packet.
func (md *metadata) addPaddingAtEnd(size uint32) {
	if !md.enabled || size == 0 {
		return
	}
	md.items = append(slices.Clip(md.items), md.newRecord(ItemPayload, 0, size))
}

// removeHeader records the removal of a header and returns false if
// the outermost chunk is not a complete header of the given type.
func (md *metadata) removeHeader(tid typeid.TypeID, size uint32, total uint32) bool {
	if !md.enabled {
		return true
	}
	if len(md.items) <= 0 || !md.matches(md.items[0], ItemHeader, tid, size) {
		md.mismatch("header", tid, total)
		return false
	}
	md.items = md.items[1:]
	return true
}

// removeTrailer records the removal of a trailer and returns false if
// the innermost chunk is not a complete trailer of the given type.
func (md *metadata) removeTrailer(tid typeid.TypeID, size uint32, total uint32) bool {
	if !md.enabled {
		return true
	}
	last := len(md.items) - 1
	if last < 0 || !md.matches(md.items[last], ItemTrailer, tid, size) {
		md.mismatch("trailer", tid, total)
		return false
	}
	md.items = slices.Clip(md.items[:last])
	return true
}

// matches returns whether r is a complete chunk with the given properties.
func (md *metadata) matches(r record, typ ItemType, tid typeid.TypeID, size uint32) bool {
	return r.typ == typ && r.tid == tid && r.size == size && !r.isFragment()
}

// mismatch handles removing a chunk that is not where we expected it. With
// checking this is fatal, otherwise the remaining bytes become payload.
func (md *metadata) mismatch(what string, tid typeid.TypeID, total uint32) {
	runtimex.Assert(!md.checking, fmt.Sprintf("packet: removing unexpected or incomplete %s %s", what, tid))
	md.reset(total)
}

// removeAtStart records the removal of count bytes from the start.
func (md *metadata) removeAtStart(count uint32) {
	if !md.enabled {
		return
	}
	items := slices.Clone(md.items)
	for count > 0 && len(items) > 0 {
		current := items[0].currentSize()
		if count >= current {
			items = items[1:]
			count -= current
			continue
		}
		items[0].trimmedFromStart += count
		count = 0
	}
	md.items = items
}

// removeAtEnd records the removal of count bytes from the end.
func (md *metadata) removeAtEnd(count uint32) {
	if !md.enabled {
		return
	}
	items := slices.Clone(md.items)
	for count > 0 && len(items) > 0 {
		last := len(items) - 1
		current := items[last].currentSize()
		if count >= current {
			items = items[:last]
			count -= current
			continue
		}
		items[last].trimmedFromEnd += count
		count = 0
	}
	md.items = items
}

// addAtEnd records appending the chunks of other. Two fragments
// of the same chunk meeting at the junction are merged.
func (md *metadata) addAtEnd(other metadata) {
	if !md.enabled {
		return
	}
	items := slices.Clone(md.items)
	tail := other.items
	if len(items) > 0 && len(tail) > 0 {
		last := &items[len(items)-1]
		first := tail[0]
		if last.chunk == first.chunk && last.size-last.trimmedFromEnd == first.trimmedFromStart {
			last.trimmedFromEnd = first.trimmedFromEnd
			tail = tail[1:]
		}
	}
	md.items = append(items, tail...)
}

// createFragment returns the metadata of a fragment obtained by removing
// start bytes at the beginning and end bytes at the end.
func (md *metadata) createFragment(start, end uint32) metadata {
	frag := *md
	frag.removeAtStart(start)
	frag.removeAtEnd(end)
	return frag
}

// Item describes a chunk of bytes inside a packet.
type Item struct {
	// Type is the type of the chunk.
	Type ItemType

	// IsFragment indicates that some bytes of the chunk have been removed.
	IsFragment bool

	// TypeID is the type of header or trailer, zero for payload.
	TypeID typeid.TypeID

	// CurrentSize is the number of bytes of the chunk in the packet.
	CurrentSize uint32

	// CurrentTrimmedFromStart is the number of bytes removed at the start.
	CurrentTrimmedFromStart uint32

	// CurrentTrimmedFromEnd is the number of bytes removed at the end.
	CurrentTrimmedFromEnd uint32

	// Current points to the first byte of headers and payload and one
	// past the last byte of trailers, which is where [Chunk.Deserialize]
	// expects to start reading.
	Current buffer.Iterator
}

// ItemIterator iterates over the chunks of a packet.
type ItemIterator struct {
	items  []record
	buffer *buffer.Buffer
	offset uint32
}

// HasNext returns whether [*ItemIterator.Next] would return an item.
func (it *ItemIterator) HasNext() bool {
	return len(it.items) > 0
}

// Next returns the next item. It panics if there are no more items.
func (it *ItemIterator) Next() Item {
	runtimex.Assert(it.HasNext(), "packet: no more items")
	r := it.items[0]
	it.items = it.items[1:]
	item := Item{
		Type:                    r.typ,
		IsFragment:              r.isFragment(),
		TypeID:                  r.tid,
		CurrentSize:             r.currentSize(),
		CurrentTrimmedFromStart: r.trimmedFromStart,
		CurrentTrimmedFromEnd:   r.trimmedFromEnd,
	}
	item.Current = it.buffer.Begin()
	item.Current.NextN(it.offset)
	if r.typ == ItemTrailer {
		item.Current.NextN(item.CurrentSize)
	}
	it.offset += item.CurrentSize
	return item
}
