// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errormodel decides which packets a simulated link corrupts.

An [ErrorModel] inspects a [*packet.Packet] and returns whether the
packet should be considered corrupted. Links drop corrupted packets.

The [*RateErrorModel] corrupts packets at random with a probability
that depends on the configured [Unit] and rate. The [*ListErrorModel]
corrupts the packets whose uid is in a list, and the
[*ReceiveListErrorModel] corrupts the Nth received packets. Both are
useful to write deterministic tests.

Every model starts enabled. A disabled model never corrupts packets.
*/
package errormodel

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pktbuf/packet"
)

// ErrorModel decides whether packets are corrupted.
type ErrorModel interface {
	// IsCorrupt returns whether pkt is corrupted.
	IsCorrupt(pkt *packet.Packet) bool

	// Reset resets any state kept by the model.
	Reset()

	// Enable enables the model.
	Enable()

	// Disable disables the model.
	Disable()

	// IsEnabled returns whether the model is enabled.
	IsEnabled() bool
}

// switchable implements the enable/disable part of [ErrorModel].
type switchable struct {
	mu       sync.Mutex
	disabled bool
}

// Enable implements [ErrorModel].
func (s *switchable) Enable() {
	s.mu.Lock()
	s.disabled = false
	s.mu.Unlock()
}

// Disable implements [ErrorModel].
func (s *switchable) Disable() {
	s.mu.Lock()
	s.disabled = true
	s.mu.Unlock()
}

// IsEnabled implements [ErrorModel].
func (s *switchable) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disabled
}

// Unit is the unit the rate of a [*RateErrorModel] applies to.
type Unit int

const (
	// UnitByte applies the rate to each byte.
	UnitByte Unit = iota

	// UnitBit applies the rate to each bit.
	UnitBit

	// UnitPacket applies the rate to each packet.
	UnitPacket
)

// String returns the name used by [ParseUnit].
func (u Unit) String() string {
	switch u {
	case UnitByte:
		return "byte"
	case UnitBit:
		return "bit"
	case UnitPacket:
		return "packet"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit parses "byte", "bit" or "packet".
func ParseUnit(value string) (Unit, error) {
	switch strings.ToLower(value) {
	case "byte", "bytes":
		return UnitByte, nil
	case "bit", "bits":
		return UnitBit, nil
	case "packet", "packets", "pkt":
		return UnitPacket, nil
	default:
		return 0, fmt.Errorf("errormodel: unknown error unit %q", value)
	}
}

// RateErrorModel corrupts packets at random.
//
// With [UnitPacket] a packet is corrupted with probability Rate. With
// [UnitByte] and [UnitBit] each unit is corrupted with probability Rate
// and a packet is corrupted when at least one of its units is, which
// happens with probability 1-(1-Rate)^n, where n is the number of units.
//
// Construct using [NewRateErrorModel].
type RateErrorModel struct {
	switchable

	// Logger is the OPTIONAL logger for corrupted packets.
	Logger *slog.Logger

	rate float64
	rng  *rand.Rand
	seed uint64
	unit Unit
}

// NewRateErrorModel creates a [*RateErrorModel]. The rate must be in
// [0, 1]. The seed makes the sequence of decisions reproducible.
func NewRateErrorModel(unit Unit, rate float64, seed uint64) *RateErrorModel {
	runtimex.Assert(rate >= 0 && rate <= 1, "errormodel: rate out of range")
	return &RateErrorModel{
		rate: rate,
		rng:  rand.New(rand.NewPCG(seed, seed)),
		seed: seed,
		unit: unit,
	}
}

var _ ErrorModel = &RateErrorModel{}

// Rate returns the configured rate.
func (em *RateErrorModel) Rate() float64 {
	return em.rate
}

// Unit returns the configured unit.
func (em *RateErrorModel) Unit() Unit {
	return em.unit
}

// probability returns the probability that a packet of the given size is corrupted.
func (em *RateErrorModel) probability(size uint32) float64 {
	switch em.unit {
	case UnitPacket:
		return em.rate
	case UnitBit:
		return 1 - math.Pow(1-em.rate, 8*float64(size))
	default:
		return 1 - math.Pow(1-em.rate, float64(size))
	}
}

// IsCorrupt implements [ErrorModel].
func (em *RateErrorModel) IsCorrupt(pkt *packet.Packet) bool {
	em.mu.Lock()
	if em.disabled {
		em.mu.Unlock()
		return false
	}
	corrupt := em.rng.Float64() < em.probability(pkt.Size())
	em.mu.Unlock()
	if corrupt && em.Logger != nil {
		em.Logger.Debug(
			"corruptPacket",
			slog.Uint64("uid", pkt.UID()),
			slog.Uint64("size", uint64(pkt.Size())),
			slog.String("unit", em.unit.String()),
			slog.Float64("rate", em.rate),
		)
	}
	return corrupt
}

// Reset implements [ErrorModel]. It restarts the random sequence.
func (em *RateErrorModel) Reset() {
	em.mu.Lock()
	em.rng = rand.New(rand.NewPCG(em.seed, em.seed))
	em.mu.Unlock()
}

// ListErrorModel corrupts the packets whose uid is in a list.
type ListErrorModel struct {
	switchable
	uids map[uint64]struct{}
}

// NewListErrorModel creates a [*ListErrorModel] corrupting the given uids.
func NewListErrorModel(uids ...uint64) *ListErrorModel {
	em := &ListErrorModel{}
	em.SetList(uids...)
	return em
}

var _ ErrorModel = &ListErrorModel{}

// SetList replaces the list of uids to corrupt.
func (em *ListErrorModel) SetList(uids ...uint64) {
	set := make(map[uint64]struct{}, len(uids))
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	em.mu.Lock()
	em.uids = set
	em.mu.Unlock()
}

// IsCorrupt implements [ErrorModel].
func (em *ListErrorModel) IsCorrupt(pkt *packet.Packet) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.disabled {
		return false
	}
	_, found := em.uids[pkt.UID()]
	return found
}

// Reset implements [ErrorModel]. The list is kept.
func (em *ListErrorModel) Reset() {}

// ReceiveListErrorModel corrupts packets by the order in which they are
// received, starting from zero, regardless of their uid.
type ReceiveListErrorModel struct {
	switchable
	indexes map[uint64]struct{}
	seen    uint64
}

// NewReceiveListErrorModel creates a [*ReceiveListErrorModel]
// corrupting the packets at the given receive indexes.
func NewReceiveListErrorModel(indexes ...uint64) *ReceiveListErrorModel {
	set := make(map[uint64]struct{}, len(indexes))
	for _, index := range indexes {
		set[index] = struct{}{}
	}
	return &ReceiveListErrorModel{indexes: set}
}

var _ ErrorModel = &ReceiveListErrorModel{}

// IsCorrupt implements [ErrorModel]. Packets inspected while the model
// is disabled do not count as received.
func (em *ReceiveListErrorModel) IsCorrupt(pkt *packet.Packet) bool {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.disabled {
		return false
	}
	_, found := em.indexes[em.seen]
	em.seen++
	return found
}

// Reset implements [ErrorModel]. It restarts counting from zero.
func (em *ReceiveListErrorModel) Reset() {
	em.mu.Lock()
	em.seen = 0
	em.mu.Unlock()
}
