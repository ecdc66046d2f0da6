// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"fmt"
	"io"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/tag"
	"github.com/rbmk-project/pktbuf/typeid"
)

// byteTagList is the [tag.List] of a [*Packet].
type byteTagList struct {
	tag.List
}

// realign shifts the tags when the first visible byte, which should
// be at offset expected, is actually at offset actual.
func (l *byteTagList) realign(expected, actual int32) {
	if expected != actual {
		l.AddAtStart(actual-expected, actual)
	}
}

// AddTag attaches t to all the bytes currently in the packet. Adding
// tags does not change what other packets sharing storage see.
func (p *Packet) AddTag(t tag.Tag) {
	buf := p.byteTags.Add(
		t.TypeID(),
		t.SerializedSize(),
		p.buffer.CurrentStartOffset(),
		p.buffer.CurrentEndOffset(),
	)
	t.Serialize(&buf)
}

// RemoveAllTags removes all the tags added using [*Packet.AddTag].
func (p *Packet) RemoveAllTags() {
	p.byteTags.RemoveAll()
}

// TagIterator returns a [TagIterator] over the tags covering at least
// one byte of the packet.
func (p *Packet) TagIterator() TagIterator {
	return TagIterator{
		it: p.byteTags.Begin(p.buffer.CurrentStartOffset(), p.buffer.CurrentEndOffset()),
	}
}

// FindFirstMatchingTag deserializes into t the first tag with the same
// type as t and returns whether such a tag exists.
func (p *Packet) FindFirstMatchingTag(t tag.Tag) bool {
	tid := t.TypeID()
	iter := p.TagIterator()
	for iter.HasNext() {
		item := iter.Next()
		if item.TypeID == tid {
			item.Tag(t)
			return true
		}
	}
	return false
}

// PrintTags writes the tags returned by [*Packet.TagIterator] to w.
func (p *Packet) PrintTags(w io.Writer) {
	iter := p.TagIterator()
	for iter.HasNext() {
		item := iter.Next()
		fmt.Fprintf(w, "%s [%d-%d]", item.TypeID, item.Start, item.End)
		if value, ok := newTag(item.TypeID); ok {
			fmt.Fprint(w, " ")
			item.Tag(value)
			value.Print(w)
		}
		if iter.HasNext() {
			fmt.Fprint(w, " ")
		}
	}
}

// newTag constructs a zero [tag.Tag] of the given type.
func newTag(tid typeid.TypeID) (tag.Tag, bool) {
	value, ok := tid.New()
	if !ok {
		return nil, false
	}
	t, ok := value.(tag.Tag)
	return t, ok
}

// TagItem is a tag returned by [*TagIterator.Next].
type TagItem struct {
	// TypeID is the type of the tag.
	TypeID typeid.TypeID

	// Start is the first byte covered by the tag, relative to the packet start.
	Start uint32

	// End is one past the last byte covered by the tag, relative to the packet start.
	End uint32

	buf tag.Buffer
}

// Tag deserializes the tag into t, which must have the same type.
func (item TagItem) Tag(t tag.Tag) {
	runtimex.Assert(t.TypeID() == item.TypeID, "packet: the tag you provided is not of the right type")
	buf := item.buf
	t.Deserialize(&buf)
}

// TagIterator iterates over the tags of a packet.
type TagIterator struct {
	it tag.ListIterator
}

// HasNext returns whether [*TagIterator.Next] would return a tag.
func (ti *TagIterator) HasNext() bool {
	return ti.it.HasNext()
}

// Next returns the next tag.
func (ti *TagIterator) Next() TagItem {
	item := ti.it.Next()
	return TagItem{
		TypeID: item.TypeID,
		Start:  uint32(item.Start - ti.it.OffsetStart()),
		End:    uint32(item.End - ti.it.OffsetStart()),
		buf:    item.Buf,
	}
}
