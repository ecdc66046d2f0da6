// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"fmt"
	"io"
	"strings"
)

// Print writes the structure of the packet to w, for example:
//
//	IPv4 (...) UDP (...) Payload (size=12)
//
// Headers and trailers are printed using the constructor registered
// with their type. Fragments print the range of bytes they contain.
// Nothing is printed unless printing or checking has been enabled.
func (p *Packet) Print(w io.Writer) {
	iter := p.BeginItem()
	for iter.HasNext() {
		item := iter.Next()
		switch {
		case item.IsFragment:
			name := "Payload"
			if item.Type != ItemPayload {
				name = item.TypeID.String()
			}
			fmt.Fprintf(w, "%s Fragment [%d:%d]", name, item.CurrentTrimmedFromStart,
				item.CurrentTrimmedFromStart+item.CurrentSize)

		case item.Type == ItemPayload:
			fmt.Fprintf(w, "Payload (size=%d)", item.CurrentSize)

		default:
			fmt.Fprintf(w, "%s (", item.TypeID)
			if chunk, ok := newChunk(item); ok {
				chunk.Deserialize(item.Current)
				chunk.Print(w)
			}
			io.WriteString(w, ")")
		}
		if iter.HasNext() {
			io.WriteString(w, " ")
		}
	}
}

// newChunk constructs a zero [Chunk] for the header or trailer item.
func newChunk(item Item) (Chunk, bool) {
	value, ok := item.TypeID.New()
	if !ok {
		return nil, false
	}
	chunk, ok := value.(Chunk)
	return chunk, ok
}

// String implements [fmt.Stringer] using [*Packet.Print].
func (p *Packet) String() string {
	var sb strings.Builder
	p.Print(&sb)
	return sb.String()
}
