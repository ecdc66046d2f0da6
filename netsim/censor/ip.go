// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"bytes"
	"net/netip"
	"sync"
	"time"

	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
)

// Blackholer implements flow blackholing with optional pattern matching
// and flow tracking. Once a flow is blackholed, all datagrams matching
// its four-tuple will be dropped for the configured duration.
type Blackholer struct {
	// target specifies an optional specific endpoint to filter
	// if zero, applies to all flows.
	target netip.AddrPort

	// pattern is an optional byte pattern to match in payload
	// if nil, only considers the target (if set).
	pattern []byte

	// duration specifies how long to maintain blackholing state, if set.
	duration time.Duration

	// mu protects access to blocked.
	mu sync.Mutex

	// blocked tracks blackholed flows.
	blocked map[fourTuple]time.Time
}

// fourTuple identifies a UDP flow.
type fourTuple struct {
	src netip.AddrPort
	dst netip.AddrPort
}

// NewBlackholer creates a new [*Blackholer] instance.
//
// The duration parameter controls how long flows remain blackholed.
//
// If target is zero, it applies to all flows.
//
// If pattern is nil, it doesn't perform payload matching.
func NewBlackholer(duration time.Duration, target netip.AddrPort, pattern []byte) *Blackholer {
	return &Blackholer{
		target:   target,
		pattern:  pattern,
		duration: duration,
		mu:       sync.Mutex{},
		blocked:  make(map[fourTuple]time.Time),
	}
}

var _ netdev.Filter = &Blackholer{}

// Filter implements [netdev.Filter].
func (t *Blackholer) Filter(d *netdev.Datagram) (netdev.Target, []*packet.Packet) {
	// Check if this flow is already blocked
	tuple := fourTuple{src: d.Source(), dst: d.Destination()}
	now := time.Now()
	t.mu.Lock()
	deadline, ok := t.blocked[tuple]
	blocked := ok && now.Before(deadline)
	if ok && !blocked {
		delete(t.blocked, tuple)
	}
	t.mu.Unlock()
	if blocked {
		return netdev.DROP, nil
	}

	// Check if we need to filter specific endpoint
	if t.target.IsValid() && d.Destination() != t.target {
		return netdev.ACCEPT, nil
	}

	// If we have a pattern, check payload
	if t.pattern != nil {
		if d.Payload.Size() <= 0 || !bytes.Contains(d.Payload.PeekData(), t.pattern) {
			return netdev.ACCEPT, nil
		}
	}

	// Block this flow
	t.mu.Lock()
	t.blocked[tuple] = now.Add(t.duration)
	t.mu.Unlock()

	return netdev.DROP, nil
}

// DNatter implements transparent proxying via DNAT (Destination NAT).
type DNatter struct {
	// source is the source address to DNAT.
	source netip.Addr

	// target is the target destination endpoint to replace.
	target netip.AddrPort

	// repl is the replacement destination endpoint.
	repl netip.AddrPort
}

// NewDNatter creates a new [*DNatter] instance.
//
// Arguments:
//
// - source is the source address to DNAT.
//
// - target is the target destination endpoint to replace.
//
// - repl is the replacement destination endpoint.
//
// For example, with:
//
// - source = "193.206.158.22"
//
// - target = "93.184.216.34:7"
//
// - repl = "10.10.34.35:7"
//
// Traffic from "193.206.158.22" to "93.184.216.34:7" will be sent
// to "10.10.34.35:7" instead and return traffic from "10.10.34.35:7" to
// "193.206.158.22" would seem to come from "93.184.216.34:7".
func NewDNatter(source netip.Addr, target, repl netip.AddrPort) *DNatter {
	return &DNatter{
		source: source,
		target: target,
		repl:   repl,
	}
}

var _ netdev.Filter = &DNatter{}

// Filter implements [netdev.Filter].
func (r *DNatter) Filter(d *netdev.Datagram) (netdev.Target, []*packet.Packet) {
	// forward match on the DNAT rule
	if d.IP.Source == r.source && d.Destination() == r.target {
		d.SetDestination(r.repl)
		return netdev.ACCEPT, nil
	}

	// return path match on the DNAT rule
	if d.Source() == r.repl && d.IP.Destination == r.source {
		d.SetSource(r.target)
		return netdev.ACCEPT, nil
	}

	// otherwise just accept the datagram
	return netdev.ACCEPT, nil
}
