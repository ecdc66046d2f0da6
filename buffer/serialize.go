// SPDX-License-Identifier: GPL-3.0-or-later

package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed indicates that serialized buffer bytes are not valid.
var ErrMalformed = errors.New("buffer: malformed serialized buffer")

// padTo4 rounds size up to a multiple of four.
func padTo4(size uint32) uint32 {
	return (size + 3) &^ 3
}

// SerializedSize returns the number of bytes produced by [*Buffer.Serialize].
func (b *Buffer) SerializedSize() uint32 {
	startLen := b.zeroStart - b.start
	endLen := b.end - b.zeroEnd
	return 4 + 4 + padTo4(startLen) + 4 + padTo4(endLen)
}

// Serialize returns a compact representation of the buffer where the
// zero area is stored as a length. The layout is a sequence of
// little-endian 32-bit words:
//
//	zero area size | start data size | start data, padded to 4 |
//	end data size | end data, padded to 4
func (b *Buffer) Serialize() []byte {
	startLen := b.zeroStart - b.start
	endLen := b.end - b.zeroEnd
	out := make([]byte, 0, b.SerializedSize())
	out = binary.LittleEndian.AppendUint32(out, b.zeroSize())
	out = binary.LittleEndian.AppendUint32(out, startLen)
	out = append(out, b.data.bytes[b.start:b.zeroStart]...)
	out = append(out, make([]byte, padTo4(startLen)-startLen)...)
	out = binary.LittleEndian.AppendUint32(out, endLen)
	out = append(out, b.data.bytes[b.zeroStart:b.internalEnd()]...)
	out = append(out, make([]byte, padTo4(endLen)-endLen)...)
	return out
}

// serialReader consumes a serialized buffer.
type serialReader struct {
	data []byte
}

// u32 reads a little-endian 32-bit word.
func (r *serialReader) u32(what string) (uint32, error) {
	if len(r.data) < 4 {
		return 0, fmt.Errorf("%w: truncated %s", ErrMalformed, what)
	}
	value := binary.LittleEndian.Uint32(r.data)
	r.data = r.data[4:]
	return value, nil
}

// chunk reads size bytes followed by padding to a multiple of four.
func (r *serialReader) chunk(size uint32, what string) ([]byte, error) {
	padded := uint64(padTo4(size))
	if uint64(size) > padded || uint64(len(r.data)) < padded {
		return nil, fmt.Errorf("%w: truncated %s", ErrMalformed, what)
	}
	value := r.data[:size]
	r.data = r.data[padded:]
	return value, nil
}

// Deserialize parses bytes produced by [*Buffer.Serialize] into a
// new [*Buffer]. Errors wrap [ErrMalformed].
func Deserialize(data []byte) (*Buffer, error) {
	r := &serialReader{data: data}
	zeroLen, err := r.u32("zero area size")
	if err != nil {
		return nil, err
	}
	startLen, err := r.u32("start data size")
	if err != nil {
		return nil, err
	}
	startData, err := r.chunk(startLen, "start data")
	if err != nil {
		return nil, err
	}
	endLen, err := r.u32("end data size")
	if err != nil {
		return nil, err
	}
	endData, err := r.chunk(endLen, "end data")
	if err != nil {
		return nil, err
	}
	if len(r.data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.data))
	}
	total := uint64(zeroLen) + uint64(startLen) + uint64(endLen)
	if total+defaultHeadroom+defaultTailroom > maxBufferSize {
		return nil, fmt.Errorf("%w: buffer too large", ErrMalformed)
	}

	buf := New(zeroLen)
	if !buf.AddAtStart(startLen) || !buf.AddAtEnd(endLen) {
		return nil, fmt.Errorf("%w: buffer too large", ErrMalformed)
	}
	iter := buf.Begin()
	iter.Write(startData)
	iter = buf.End()
	iter.PrevN(endLen)
	iter.Write(endData)
	return buf, nil
}
