// SPDX-License-Identifier: GPL-3.0-or-later

package buffer_test

import (
	"errors"
	"testing"

	"github.com/rbmk-project/pktbuf/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill writes the bytes of data starting at the beginning of buf.
func fill(buf *buffer.Buffer, data []byte) {
	iter := buf.Begin()
	iter.Write(data)
}

func TestNew(t *testing.T) {
	buf := buffer.New(100)
	assert.Equal(t, uint32(100), buf.Size())
	assert.Equal(t, make([]byte, 100), buf.Bytes())

	empty := buffer.NewEmpty()
	assert.Equal(t, uint32(0), empty.Size())
	assert.Equal(t, empty.CurrentStartOffset(), empty.CurrentEndOffset())
}

func TestAddAtStartAndEnd(t *testing.T) {
	buf := buffer.NewEmpty()
	require.True(t, buf.AddAtStart(2))
	fill(buf, []byte{0x03, 0x04})
	require.True(t, buf.AddAtStart(2))
	fill(buf, []byte{0x01, 0x02})
	require.True(t, buf.AddAtEnd(1))
	iter := buf.End()
	iter.Prev()
	iter.WriteU8(0x05)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, buf.Bytes())
}

func TestAddAtStartBeyondHeadroom(t *testing.T) {
	buf := buffer.New(10)
	require.True(t, buf.AddAtStart(1000))
	iter := buf.Begin()
	iter.WriteU8N(0xaa, 1000)
	assert.Equal(t, uint32(1010), buf.Size())
	data := buf.Bytes()
	assert.Equal(t, byte(0xaa), data[999])
	assert.Equal(t, byte(0), data[1000])
}

func TestAddAtEndFailsWhenTooLarge(t *testing.T) {
	buf := buffer.New(0x7fffffff - 64 - 16 - 10)
	start, end := buf.CurrentStartOffset(), buf.CurrentEndOffset()
	assert.False(t, buf.AddAtEnd(100))
	assert.False(t, buf.AddAtStart(100))
	assert.Equal(t, start, buf.CurrentStartOffset())
	assert.Equal(t, end, buf.CurrentEndOffset())
}

func TestRemove(t *testing.T) {
	// newBuffer returns [1 2 3 | 0 0 0 0 | 4 5 6].
	newBuffer := func() *buffer.Buffer {
		buf := buffer.New(4)
		buf.AddAtStart(3)
		fill(buf, []byte{1, 2, 3})
		buf.AddAtEnd(3)
		iter := buf.End()
		iter.PrevN(3)
		iter.Write([]byte{4, 5, 6})
		return buf
	}

	tests := []struct {
		name    string
		atStart bool
		count   uint32
		want    []byte
	}{
		{"start data only", true, 2, []byte{3, 0, 0, 0, 0, 4, 5, 6}},
		{"into the zero area", true, 5, []byte{0, 0, 4, 5, 6}},
		{"into the end data", true, 8, []byte{5, 6}},
		{"everything from start", true, 100, []byte{}},
		{"end data only", false, 2, []byte{1, 2, 3, 0, 0, 0, 0, 4}},
		{"into the zero area from end", false, 5, []byte{1, 2, 3, 0, 0}},
		{"into the start data", false, 8, []byte{1, 2}},
		{"everything from end", false, 100, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newBuffer()
			if tt.atStart {
				buf.RemoveAtStart(tt.count)
			} else {
				buf.RemoveAtEnd(tt.count)
			}
			assert.Equal(t, tt.want, buf.Bytes())
			assert.Equal(t, uint32(len(tt.want)), buf.Size())
		})
	}
}

func TestCloneDoesNotCorruptSharers(t *testing.T) {
	orig := buffer.NewEmpty()
	orig.AddAtStart(4)
	fill(orig, []byte{1, 2, 3, 4})

	clone := orig.Clone()
	orig.AddAtStart(2)
	fill(orig, []byte{0xaa, 0xbb})

	clone.AddAtStart(2)
	fill(clone, []byte{0xcc, 0xdd})

	orig.AddAtEnd(1)
	iter := orig.End()
	iter.Prev()
	iter.WriteU8(0xee)

	clone.AddAtEnd(1)
	iter = clone.End()
	iter.Prev()
	iter.WriteU8(0xff)

	assert.Equal(t, []byte{0xaa, 0xbb, 1, 2, 3, 4, 0xee}, orig.Bytes())
	assert.Equal(t, []byte{0xcc, 0xdd, 1, 2, 3, 4, 0xff}, clone.Bytes())
}

func TestAddBufferAtEnd(t *testing.T) {
	t.Run("regular buffers", func(t *testing.T) {
		a := buffer.NewEmpty()
		a.AddAtStart(2)
		fill(a, []byte{1, 2})
		b := buffer.NewEmpty()
		b.AddAtStart(2)
		fill(b, []byte{3, 4})

		a.AddBufferAtEnd(b)
		assert.Equal(t, []byte{1, 2, 3, 4}, a.Bytes())
		assert.Equal(t, []byte{3, 4}, b.Bytes())
	})

	t.Run("merging zero areas", func(t *testing.T) {
		a := buffer.New(3)
		b := buffer.New(2)
		b.AddAtEnd(1)
		iter := b.End()
		iter.Prev()
		iter.WriteU8(9)

		a.AddBufferAtEnd(b)
		assert.Equal(t, []byte{0, 0, 0, 0, 0, 9}, a.Bytes())
		assert.Equal(t, []byte{0, 0, 9}, b.Bytes())
	})

	t.Run("with itself", func(t *testing.T) {
		a := buffer.NewEmpty()
		a.AddAtStart(2)
		fill(a, []byte{1, 2})
		a.AddBufferAtEnd(a)
		assert.Equal(t, []byte{1, 2, 1, 2}, a.Bytes())
	})
}

func TestCreateFragment(t *testing.T) {
	buf := buffer.NewEmpty()
	buf.AddAtStart(6)
	fill(buf, []byte{1, 2, 3, 4, 5, 6})

	frag := buf.CreateFragment(2, 3)
	assert.Equal(t, []byte{3, 4, 5}, frag.Bytes())

	frag.AddAtStart(1)
	fill(frag, []byte{0xff})
	assert.Equal(t, []byte{0xff, 3, 4, 5}, frag.Bytes())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, buf.Bytes())

	assert.Panics(t, func() { buf.CreateFragment(4, 3) })
}

func TestCreateFullCopy(t *testing.T) {
	buf := buffer.New(3)
	buf.AddAtStart(1)
	fill(buf, []byte{7})

	full := buf.CreateFullCopy()
	assert.Equal(t, buf.Bytes(), full.Bytes())

	iter := full.Begin()
	iter.Next()
	iter.WriteU8(8) // the zero area is materialized
	assert.Equal(t, []byte{7, 8, 0, 0}, full.Bytes())
	assert.Equal(t, []byte{7, 0, 0, 0}, buf.Bytes())
}

func TestPeekAndCopyData(t *testing.T) {
	buf := buffer.New(2)
	buf.AddAtStart(1)
	fill(buf, []byte{1})

	assert.Equal(t, []byte{1, 0, 0}, buf.PeekData())

	dst := make([]byte, 2)
	assert.Equal(t, 2, buf.CopyData(dst))
	assert.Equal(t, []byte{1, 0}, dst)
}

func TestSerialize(t *testing.T) {
	buf := buffer.New(1000)
	buf.AddAtStart(3)
	fill(buf, []byte{1, 2, 3})
	buf.AddAtEnd(5)
	iter := buf.End()
	iter.PrevN(5)
	iter.Write([]byte{4, 5, 6, 7, 8})

	data := buf.Serialize()
	assert.Equal(t, int(buf.SerializedSize()), len(data))
	assert.Equal(t, 4+4+4+4+8, len(data))

	got, err := buffer.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), got.Bytes())

	t.Run("malformed input", func(t *testing.T) {
		for _, input := range [][]byte{
			nil,
			data[:6],
			data[:len(data)-1],
			append(append([]byte{}, data...), 0),
			{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff},
		} {
			_, err := buffer.Deserialize(input)
			assert.True(t, errors.Is(err, buffer.ErrMalformed))
		}
	})
}
