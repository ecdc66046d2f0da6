// SPDX-License-Identifier: GPL-3.0-or-later

package errormodel_test

import (
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/rbmk-project/pktbuf/errormodel"
	"github.com/rbmk-project/pktbuf/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateErrorModel(t *testing.T) {
	tests := []struct {
		name string
		unit errormodel.Unit
		rate float64
		size uint32
		want bool
	}{
		{"packet rate zero", errormodel.UnitPacket, 0, 1000, false},
		{"packet rate one", errormodel.UnitPacket, 1, 1000, true},
		{"byte rate zero", errormodel.UnitByte, 0, 1000, false},
		{"byte rate one", errormodel.UnitByte, 1, 10, true},
		{"bit rate one", errormodel.UnitBit, 1, 1, true},
		{"byte rate on empty packet", errormodel.UnitByte, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := errormodel.NewRateErrorModel(tt.unit, tt.rate, 1)
			for range 16 {
				assert.Equal(t, tt.want, em.IsCorrupt(packet.New(tt.size)))
			}
		})
	}

	t.Run("invalid rates panic", func(t *testing.T) {
		assert.Panics(t, func() { errormodel.NewRateErrorModel(errormodel.UnitByte, 1.5, 1) })
		assert.Panics(t, func() { errormodel.NewRateErrorModel(errormodel.UnitByte, -0.1, 1) })
	})
}

func TestRateErrorModelIsReproducible(t *testing.T) {
	pkt := packet.New(100)
	decide := func(em *errormodel.RateErrorModel) []bool {
		var out []bool
		for range 64 {
			out = append(out, em.IsCorrupt(pkt))
		}
		return out
	}

	first := errormodel.NewRateErrorModel(errormodel.UnitByte, 0.005, 42)
	second := errormodel.NewRateErrorModel(errormodel.UnitByte, 0.005, 42)
	sequence := decide(first)
	assert.Equal(t, sequence, decide(second))
	assert.Contains(t, sequence, true)
	assert.Contains(t, sequence, false)

	first.Reset()
	assert.Equal(t, sequence, decide(first))
}

func TestRateErrorModelLogs(t *testing.T) {
	em := errormodel.NewRateErrorModel(errormodel.UnitPacket, 1, 1)
	em.Logger = slogt.New(t)
	assert.True(t, em.IsCorrupt(packet.New(4)))
}

func TestEnableDisable(t *testing.T) {
	models := map[string]errormodel.ErrorModel{
		"rate":         errormodel.NewRateErrorModel(errormodel.UnitPacket, 1, 1),
		"list":         errormodel.NewListErrorModel(),
		"receive list": errormodel.NewReceiveListErrorModel(0, 1, 2, 3),
	}
	for name, em := range models {
		t.Run(name, func(t *testing.T) {
			if list, ok := em.(*errormodel.ListErrorModel); ok {
				pkt := packet.New(1)
				list.SetList(pkt.UID())
				assert.True(t, em.IsEnabled())
				em.Disable()
				assert.False(t, em.IsEnabled())
				assert.False(t, em.IsCorrupt(pkt))
				em.Enable()
				assert.True(t, em.IsCorrupt(pkt))
				return
			}
			assert.True(t, em.IsEnabled())
			em.Disable()
			assert.False(t, em.IsEnabled())
			assert.False(t, em.IsCorrupt(packet.New(1)))
			em.Enable()
			assert.True(t, em.IsEnabled())
			assert.True(t, em.IsCorrupt(packet.New(1)))
		})
	}
}

func TestListErrorModel(t *testing.T) {
	first := packet.New(10)
	second := packet.New(10)
	em := errormodel.NewListErrorModel(second.UID())
	assert.False(t, em.IsCorrupt(first))
	assert.True(t, em.IsCorrupt(second))

	t.Run("copies have a different uid", func(t *testing.T) {
		assert.False(t, em.IsCorrupt(second.Copy()))
	})

	t.Run("reset keeps the list", func(t *testing.T) {
		em.Reset()
		assert.True(t, em.IsCorrupt(second))
	})
}

func TestReceiveListErrorModel(t *testing.T) {
	em := errormodel.NewReceiveListErrorModel(1, 3)
	var got []bool
	for range 5 {
		got = append(got, em.IsCorrupt(packet.New(1)))
	}
	assert.Equal(t, []bool{false, true, false, true, false}, got)

	em.Reset()
	assert.False(t, em.IsCorrupt(packet.New(1)))
	assert.True(t, em.IsCorrupt(packet.New(1)))
}

func TestParseUnit(t *testing.T) {
	for _, name := range []string{"byte", "bit", "packet"} {
		unit, err := errormodel.ParseUnit(name)
		require.NoError(t, err)
		assert.Equal(t, name, unit.String())
	}
	_, err := errormodel.ParseUnit("frame")
	assert.Error(t, err)
	assert.Equal(t, "Unit(7)", errormodel.Unit(7).String())
}

func TestParseDataRate(t *testing.T) {
	tests := []struct {
		input   string
		want    errormodel.DataRate
		wantErr bool
	}{
		{input: "9600", want: 9600},
		{input: "10Mbps", want: 10_000_000},
		{input: "10Mb/s", want: 10_000_000},
		{input: "1.5Mbps", want: 1_500_000},
		{input: "1kbps", want: 1000},
		{input: "1Kbps", want: 1000},
		{input: "1KBps", want: 8000},
		{input: "1KiBps", want: 8192},
		{input: "2Gibps", want: 2 << 30},
		{input: " 100bps ", want: 100},
		{input: "", wantErr: true},
		{input: "Mbps", wantErr: true},
		{input: "10Mb", wantErr: true},
		{input: "10Xbps", wantErr: true},
		{input: "10Mxps", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := errormodel.ParseDataRate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateTxTime(t *testing.T) {
	rate := errormodel.DataRate(8_000_000)
	assert.Equal(t, time.Millisecond, rate.CalculateTxTime(1000))
	assert.Equal(t, time.Duration(0), errormodel.DataRate(0).CalculateTxTime(1000))
	assert.Equal(t, "8000000bps", rate.String())
	assert.Equal(t, uint64(8_000_000), rate.BitRate())
}
