// SPDX-License-Identifier: GPL-3.0-or-later

package headers

import (
	"fmt"
	"io"
	"time"

	"github.com/rbmk-project/pktbuf/tag"
	"github.com/rbmk-project/pktbuf/typeid"
)

// FlowIDTag identifies the flow a packet belongs to.
type FlowIDTag struct {
	FlowID uint32
}

var _ tag.Tag = &FlowIDTag{}

// TypeID implements [tag.Tag].
func (t *FlowIDTag) TypeID() typeid.TypeID {
	return FlowIDTagTypeID
}

// SerializedSize implements [tag.Tag].
func (t *FlowIDTag) SerializedSize() uint32 {
	return 4
}

// Serialize implements [tag.Tag].
func (t *FlowIDTag) Serialize(b *tag.Buffer) {
	b.WriteU32(t.FlowID)
}

// Deserialize implements [tag.Tag].
func (t *FlowIDTag) Deserialize(b *tag.Buffer) {
	t.FlowID = b.ReadU32()
}

// Print implements [tag.Tag].
func (t *FlowIDTag) Print(w io.Writer) {
	fmt.Fprintf(w, "FlowId=%d", t.FlowID)
}

// TimestampTag records when a packet was sent, relative to the start
// of the simulation.
type TimestampTag struct {
	Timestamp time.Duration
}

var _ tag.Tag = &TimestampTag{}

// TypeID implements [tag.Tag].
func (t *TimestampTag) TypeID() typeid.TypeID {
	return TimestampTagTypeID
}

// SerializedSize implements [tag.Tag].
func (t *TimestampTag) SerializedSize() uint32 {
	return 8
}

// Serialize implements [tag.Tag].
func (t *TimestampTag) Serialize(b *tag.Buffer) {
	b.WriteU64(uint64(t.Timestamp))
}

// Deserialize implements [tag.Tag].
func (t *TimestampTag) Deserialize(b *tag.Buffer) {
	t.Timestamp = time.Duration(b.ReadU64())
}

// Print implements [tag.Tag].
func (t *TimestampTag) Print(w io.Writer) {
	fmt.Fprintf(w, "Timestamp=%s", t.Timestamp)
}

// SignalStrengthTag records the received signal strength in dBm.
type SignalStrengthTag struct {
	DBm float64
}

var _ tag.Tag = &SignalStrengthTag{}

// TypeID implements [tag.Tag].
func (t *SignalStrengthTag) TypeID() typeid.TypeID {
	return SignalStrengthTypeID
}

// SerializedSize implements [tag.Tag].
func (t *SignalStrengthTag) SerializedSize() uint32 {
	return 8
}

// Serialize implements [tag.Tag].
func (t *SignalStrengthTag) Serialize(b *tag.Buffer) {
	b.WriteDouble(t.DBm)
}

// Deserialize implements [tag.Tag].
func (t *SignalStrengthTag) Deserialize(b *tag.Buffer) {
	t.DBm = b.ReadDouble()
}

// Print implements [tag.Tag].
func (t *SignalStrengthTag) Print(w io.Writer) {
	fmt.Fprintf(w, "SignalStrength=%.1fdBm", t.DBm)
}
