// SPDX-License-Identifier: GPL-3.0-or-later

package tag

import (
	"math"

	"github.com/rbmk-project/pktbuf/typeid"
)

// entry is a serialized tag with its byte range.
type entry struct {
	tid   typeid.TypeID
	size  uint32
	start int32
	end   int32
	data  []byte
}

// listData is the entry array possibly shared by several [List].
type listData struct {
	entries []entry

	// dirty is the number of entries of the list that appended last.
	// Only a list using exactly dirty entries may append in place.
	dirty int
}

// List is an ordered list of tags, each scoped to a byte range.
//
// The zero value is an empty list ready to use. Copying a List is
// cheap: copies share the entries until one of them changes.
type List struct {
	data *listData
	used int
}

// Len returns the number of tags in the list, regardless of their range.
func (l *List) Len() int {
	return l.used
}

// entries returns the entries visible through this list.
func (l *List) entries() []entry {
	if l.data == nil {
		return nil
	}
	return l.data.entries[:l.used]
}

// Add adds a tag of the given type covering [start, end) and returns
// a [Buffer] of bufferSize bytes the caller must fill immediately.
func (l *List) Add(tid typeid.TypeID, bufferSize uint32, start, end int32) Buffer {
	if l.data == nil || l.data.dirty != l.used {
		ndata := &listData{entries: make([]entry, l.used, l.used+4)}
		copy(ndata.entries, l.entries())
		l.data = ndata
	}
	e := entry{tid: tid, size: bufferSize, start: start, end: end, data: make([]byte, bufferSize)}
	l.data.entries = append(l.data.entries[:l.used], e)
	l.used++
	l.data.dirty = l.used
	return NewBuffer(e.data)
}

// AddList appends copies of all the tags of o.
func (l *List) AddList(o List) {
	iter := o.BeginAll()
	for iter.HasNext() {
		item := iter.Next()
		buf := l.Add(item.TypeID, item.Size, item.Start, item.End)
		buf.CopyFrom(item.Buf)
	}
}

// RemoveAll removes all the tags.
func (l *List) RemoveAll() {
	l.data = nil
	l.used = 0
}

// Begin returns a [ListIterator] over the tags whose range intersects
// [offsetStart, offsetEnd). The iterator clamps ranges to that window.
func (l *List) Begin(offsetStart, offsetEnd int32) ListIterator {
	return ListIterator{
		entries:     l.entries(),
		offsetStart: offsetStart,
		offsetEnd:   offsetEnd,
	}
}

// BeginAll returns a [ListIterator] over all the tags.
func (l *List) BeginAll() ListIterator {
	return l.Begin(0, math.MaxInt32)
}

// AddAtStart shifts all ranges by adjustment after the owning buffer
// has grown at its start. Tags ending at or before prependOffset cover
// bytes that are no longer there and are removed. Tags starting before
// prependOffset are clamped to it.
func (l *List) AddAtStart(adjustment, prependOffset int32) {
	l.rebuild(func(start, end int32) (int32, int32, bool) {
		start += adjustment
		end += adjustment
		if end <= prependOffset {
			return 0, 0, false
		}
		return max(start, prependOffset), end, true
	})
}

// AddAtEnd shifts all ranges by adjustment after the owning buffer
// has grown at its end. Tags starting at or after appendOffset cover
// bytes that are no longer there and are removed. Tags ending after
// appendOffset are clamped to it.
func (l *List) AddAtEnd(adjustment, appendOffset int32) {
	l.rebuild(func(start, end int32) (int32, int32, bool) {
		start += adjustment
		end += adjustment
		if start >= appendOffset {
			return 0, 0, false
		}
		return start, min(end, appendOffset), true
	})
}

// rebuild replaces the list with a new list where each range has been
// transformed by fx, dropping tags for which fx returns false.
func (l *List) rebuild(fx func(start, end int32) (int32, int32, bool)) {
	var out List
	for _, e := range l.entries() {
		start, end, keep := fx(e.start, e.end)
		if !keep {
			continue
		}
		buf := out.Add(e.tid, e.size, start, end)
		buf.Write(e.data)
	}
	*l = out
}

// Item is a tag returned by [*ListIterator.Next].
type Item struct {
	// TypeID is the type of the tag.
	TypeID typeid.TypeID

	// Size is the size of the serialized tag.
	Size uint32

	// Start is the first byte covered, clamped to the iteration window.
	Start int32

	// End is one past the last byte covered, clamped to the iteration window.
	End int32

	// Buf allows deserializing the tag.
	Buf Buffer
}

// ListIterator iterates over the tags of a [List].
type ListIterator struct {
	entries     []entry
	next        int
	offsetStart int32
	offsetEnd   int32
}

// skip moves past the entries that do not intersect the window.
func (it *ListIterator) skip() {
	for it.next < len(it.entries) {
		e := it.entries[it.next]
		if e.start < it.offsetEnd && e.end > it.offsetStart {
			return
		}
		it.next++
	}
}

// HasNext returns whether [*ListIterator.Next] would return a tag.
func (it *ListIterator) HasNext() bool {
	it.skip()
	return it.next < len(it.entries)
}

// Next returns the next tag. It panics if there are no more tags.
func (it *ListIterator) Next() Item {
	it.skip()
	e := it.entries[it.next]
	it.next++
	return Item{
		TypeID: e.tid,
		Size:   e.size,
		Start:  max(e.start, it.offsetStart),
		End:    min(e.end, it.offsetEnd),
		Buf:    NewBuffer(e.data),
	}
}

// OffsetStart returns the start of the iteration window.
func (it *ListIterator) OffsetStart() int32 {
	return it.offsetStart
}
