// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"io"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/tag"
	"github.com/rbmk-project/pktbuf/typeid"
)

// packetTagNode is an immutable node of a [packetTagList].
type packetTagNode struct {
	tid  typeid.TypeID
	data []byte
	next *packetTagNode
}

// packetTagList is an immutable linked list of tags attached to a
// packet as a whole. Copies share nodes safely.
type packetTagList struct {
	head *packetTagNode
}

// serializeTag returns the serialized bytes of t.
func serializeTag(t tag.Tag) []byte {
	data := make([]byte, t.SerializedSize())
	buf := tag.NewBuffer(data)
	t.Serialize(&buf)
	return data
}

// without returns a list without the first node of the given type.
func (l packetTagList) without(tid typeid.TypeID) (packetTagList, bool) {
	var prefix []*packetTagNode
	for node := l.head; node != nil; node = node.next {
		if node.tid != tid {
			prefix = append(prefix, node)
			continue
		}
		head := node.next
		for idx := len(prefix) - 1; idx >= 0; idx-- {
			head = &packetTagNode{tid: prefix[idx].tid, data: prefix[idx].data, next: head}
		}
		return packetTagList{head: head}, true
	}
	return l, false
}

// find returns the first node of the given type.
func (l packetTagList) find(tid typeid.TypeID) *packetTagNode {
	for node := l.head; node != nil; node = node.next {
		if node.tid == tid {
			return node
		}
	}
	return nil
}

// AddPacketTag attaches t to the packet as a whole. Unlike tags added
// with [*Packet.AddTag], packet tags do not follow bytes into fragments
// or concatenated packets. At most one tag of each type is allowed.
func (p *Packet) AddPacketTag(t tag.Tag) {
	runtimex.Assert(p.packetTags.find(t.TypeID()) == nil, "packet: packet tag already present")
	p.packetTags = packetTagList{
		head: &packetTagNode{tid: t.TypeID(), data: serializeTag(t), next: p.packetTags.head},
	}
}

// PeekPacketTag deserializes the packet tag with the same type as t
// into t and returns whether it exists.
func (p *Packet) PeekPacketTag(t tag.Tag) bool {
	node := p.packetTags.find(t.TypeID())
	if node == nil {
		return false
	}
	buf := tag.NewBuffer(node.data)
	t.Deserialize(&buf)
	return true
}

// RemovePacketTag is like [*Packet.PeekPacketTag] but also removes the tag.
func (p *Packet) RemovePacketTag(t tag.Tag) bool {
	if !p.PeekPacketTag(t) {
		return false
	}
	p.packetTags, _ = p.packetTags.without(t.TypeID())
	return true
}

// ReplacePacketTag replaces the packet tag with the same type as t
// and returns whether such a tag existed.
func (p *Packet) ReplacePacketTag(t tag.Tag) bool {
	list, found := p.packetTags.without(t.TypeID())
	if !found {
		return false
	}
	p.packetTags = packetTagList{
		head: &packetTagNode{tid: t.TypeID(), data: serializeTag(t), next: list.head},
	}
	return true
}

// RemoveAllPacketTags removes all the packet tags.
func (p *Packet) RemoveAllPacketTags() {
	p.packetTags = packetTagList{}
}

// PrintPacketTags writes the packet tags to w.
func (p *Packet) PrintPacketTags(w io.Writer) {
	for node := p.packetTags.head; node != nil; node = node.next {
		io.WriteString(w, node.tid.String())
		if value, ok := newTag(node.tid); ok {
			io.WriteString(w, " ")
			buf := tag.NewBuffer(node.data)
			value.Deserialize(&buf)
			value.Print(w)
		}
		if node.next != nil {
			io.WriteString(w, " ")
		}
	}
}
