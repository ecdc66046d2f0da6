// SPDX-License-Identifier: GPL-3.0-or-later

package errormodel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataRate is a link data rate in bits per second.
type DataRate uint64

// rateUnits maps a unit prefix to its multiplier.
var rateUnits = map[string]uint64{
	"":   1,
	"k":  1000,
	"K":  1000,
	"M":  1000 * 1000,
	"G":  1000 * 1000 * 1000,
	"T":  1000 * 1000 * 1000 * 1000,
	"Ki": 1 << 10,
	"Mi": 1 << 20,
	"Gi": 1 << 30,
	"Ti": 1 << 40,
}

// ParseDataRate parses a data rate such as "10Mbps", "1.5Mb/s",
// "100KiBps" or "9600". A "B" means bytes, a "b" means bits, and a
// value without unit is in bits per second.
func ParseDataRate(value string) (DataRate, error) {
	value = strings.TrimSpace(value)
	split := strings.IndexFunc(value, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	number, unit := value, ""
	if split >= 0 {
		number, unit = value[:split], value[split:]
	}
	scalar, err := strconv.ParseFloat(number, 64)
	if err != nil || scalar < 0 {
		return 0, fmt.Errorf("errormodel: invalid data rate %q", value)
	}
	multiplier, err := parseRateUnit(unit)
	if err != nil {
		return 0, fmt.Errorf("errormodel: invalid data rate %q: %w", value, err)
	}
	return DataRate(scalar * float64(multiplier)), nil
}

// parseRateUnit returns the multiplier of units like "Mbps" or "KiB/s".
func parseRateUnit(unit string) (uint64, error) {
	if unit == "" {
		return 1, nil
	}
	switch {
	case strings.HasSuffix(unit, "ps"):
		unit = strings.TrimSuffix(unit, "ps")
	case strings.HasSuffix(unit, "/s"):
		unit = strings.TrimSuffix(unit, "/s")
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	var bits uint64
	switch {
	case strings.HasSuffix(unit, "b"):
		bits = 1
	case strings.HasSuffix(unit, "B"):
		bits = 8
	default:
		return 0, fmt.Errorf("unknown unit %q", unit)
	}
	prefix := unit[:len(unit)-1]
	multiplier, found := rateUnits[prefix]
	if !found {
		return 0, fmt.Errorf("unknown prefix %q", prefix)
	}
	return bits * multiplier, nil
}

// BitRate returns the rate in bits per second.
func (r DataRate) BitRate() uint64 {
	return uint64(r)
}

// CalculateTxTime returns the time it takes to transmit size bytes. A
// zero rate means an infinitely fast link.
func (r DataRate) CalculateTxTime(size uint32) time.Duration {
	if r == 0 {
		return 0
	}
	bits := float64(size) * 8
	return time.Duration(bits * float64(time.Second) / float64(r))
}

// String returns the rate in bits per second, like "10000000bps".
func (r DataRate) String() string {
	return strconv.FormatUint(uint64(r), 10) + "bps"
}
