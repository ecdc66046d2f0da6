// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package headers contains concrete headers, trailers and tags for
the packet package.

The [*Ethernet] header and [*EthernetTrailer] frame packets on a
link, the [*IPv4] and [*UDP] headers carry datagrams across routers,
and the [*DNS] header wraps a DNS message as the UDP payload.

The Remove* functions parse headers from packets received from
the network and return errors rather than panicking when the bytes
are not what we expect.
*/
package headers

import (
	"errors"

	"github.com/rbmk-project/pktbuf/typeid"
)

var (
	// ErrTruncated indicates that a packet is too short for a header.
	ErrTruncated = errors.New("headers: truncated packet")

	// ErrChecksum indicates that a checksum is wrong.
	ErrChecksum = errors.New("headers: invalid checksum")

	// ErrUnsupported indicates a valid but unsupported header.
	ErrUnsupported = errors.New("headers: unsupported header")
)

// Type identifiers of the headers, trailers and tags of this package.
var (
	EthernetTypeID        = typeid.Register("headers.Ethernet", func() any { return &Ethernet{} })
	EthernetTrailerTypeID = typeid.Register("headers.EthernetTrailer", func() any { return &EthernetTrailer{} })
	IPv4TypeID            = typeid.Register("headers.IPv4", func() any { return &IPv4{} })
	UDPTypeID             = typeid.Register("headers.UDP", func() any { return &UDP{} })
	DNSTypeID             = typeid.Register("headers.DNS", func() any { return &DNS{} })
	FlowIDTagTypeID       = typeid.Register("headers.FlowIDTag", func() any { return &FlowIDTag{} })
	TimestampTagTypeID    = typeid.Register("headers.TimestampTag", func() any { return &TimestampTag{} })
	SignalStrengthTypeID  = typeid.Register("headers.SignalStrengthTag", func() any { return &SignalStrengthTag{} })
)
