// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package tag implements out-of-band packet metadata.

A [Tag] is metadata attached to a byte range of a packet. Tags never
appear on the wire: they exist for simulation bookkeeping, such as
recording a flow identifier or the signal strength at reception.

A [List] stores serialized tags along with the byte range each one
covers, expressed using buffer offsets (see the buffer package). When
the buffer grows, the owner realigns the list using [*List.AddAtStart]
and [*List.AddAtEnd] so that ranges keep covering the same bytes.
*/
package tag

import (
	"io"

	"github.com/rbmk-project/pktbuf/typeid"
)

// Tag is the capability implemented by packet tags.
type Tag interface {
	// TypeID returns the registered type of the tag.
	TypeID() typeid.TypeID

	// SerializedSize returns the exact number of bytes written by Serialize.
	SerializedSize() uint32

	// Serialize writes the tag into the given slot.
	Serialize(b *Buffer)

	// Deserialize reads the tag from the given slot.
	Deserialize(b *Buffer)

	// Print writes a human readable representation of the tag.
	Print(w io.Writer)
}
