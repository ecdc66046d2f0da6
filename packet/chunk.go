// SPDX-License-Identifier: GPL-3.0-or-later

package packet

import (
	"io"

	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/rbmk-project/pktbuf/typeid"
)

// Chunk is the capability shared by [Header] and [Trailer].
type Chunk interface {
	// Deserialize reads the chunk and returns the number of bytes read.
	//
	// Headers receive an iterator pointing to their first byte while
	// trailers receive an iterator pointing one past their last byte.
	Deserialize(it buffer.Iterator) uint32

	// Print writes a human readable representation of the chunk.
	Print(w io.Writer)
}

// Header is protocol framing placed before the payload.
type Header interface {
	Chunk

	// TypeID returns the registered type of the header.
	TypeID() typeid.TypeID

	// SerializedSize returns the exact number of bytes written by Serialize.
	SerializedSize() uint32

	// Serialize writes the header starting at the given position.
	Serialize(start buffer.Iterator)
}

// Trailer is protocol framing placed after the payload.
type Trailer interface {
	Chunk

	// TypeID returns the registered type of the trailer.
	TypeID() typeid.TypeID

	// SerializedSize returns the exact number of bytes written by Serialize.
	SerializedSize() uint32

	// Serialize writes the trailer, which ends at the given position.
	Serialize(end buffer.Iterator)
}
