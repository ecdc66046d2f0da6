// SPDX-License-Identifier: GPL-3.0-or-later

// Package router provides network routing capabilities for testing
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/pktbuf/headers"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
)

// Router provides routing capabilities.
//
// Construct using [New].
type Router struct {
	// Logger is the OPTIONAL logger. Set it before attaching devices.
	Logger *slog.Logger

	// MTU is the OPTIONAL maximum size of forwarded packets. Larger
	// packets are fragmented. Set it before attaching devices.
	MTU uint32

	// filters contains the filters applied to routed datagrams.
	filters []netdev.Filter

	// mu protects filters and srt.
	mu sync.RWMutex

	// srt is the static routing table.
	srt map[netip.Addr]netdev.NetworkDevice
}

// New creates a new [*Router].
func New() *Router {
	return &Router{
		srt: make(map[netip.Addr]netdev.NetworkDevice),
	}
}

// Attach attaches a [netdev.NetworkDevice] to the [*Router].
func (r *Router) Attach(dev netdev.NetworkDevice) {
	go r.readLoop(dev)
}

// AddRoute adds routes for all addresses of the given [netdev.NetworkDevice].
func (r *Router) AddRoute(dev netdev.NetworkDevice) {
	r.mu.Lock()
	for _, addr := range dev.Addresses() {
		r.srt[addr.Unmap()] = dev
	}
	r.mu.Unlock()
}

// AddFilter adds a [netdev.Filter] applied to each routed datagram.
func (r *Router) AddFilter(filter netdev.Filter) {
	r.mu.Lock()
	r.filters = append(r.filters, filter)
	r.mu.Unlock()
}

// readLoop reads packets from a [netdev.NetworkDevice] until EOF.
func (r *Router) readLoop(dev netdev.NetworkDevice) {
	for {
		select {
		case <-dev.EOF():
			return
		case pkt := <-dev.Output():
			uid := pkt.UID()
			if err := r.route(pkt); err != nil && r.Logger != nil {
				r.Logger.LogAttrs(
					context.Background(),
					slog.LevelInfo,
					"routeDrop",
					slog.Uint64("uid", uid),
					slog.Any("err", err),
					slog.String("errClass", errclass.New(err)),
				)
			}
		}
	}
}

var (
	// errTTLExceeded is returned when a packet's TTL is exceeded.
	errTTLExceeded = errors.New("TTL exceeded in transit")

	// errNoRouteToHost is returned when there is no route to the host.
	errNoRouteToHost = errors.New("no route to host")

	// errBufferFull is returned when the buffer is full.
	errBufferFull = errors.New("buffer full")

	// errFiltered is returned when a filter drops a datagram.
	errFiltered = errors.New("dropped by filter")
)

// route routes a given packet to its destination.
func (r *Router) route(pkt *packet.Packet) error {
	ip, err := headers.RemoveIPv4(pkt)
	if err != nil {
		return err
	}

	// Decrement TTL.
	if ip.TTL <= 1 {
		return errTTLExceeded
	}
	ip.TTL--

	// Fragments and non-UDP packets bypass the filters.
	if netdev.IsFragment(ip) || ip.Protocol != headers.IPProtocolUDP {
		pkt.AddHeader(ip)
		return r.forward(pkt)
	}
	d, err := netdev.DecodeUDP(ip, pkt)
	if err != nil {
		return err
	}

	target, injected := r.filter(d)
	for _, inj := range injected {
		if err := r.forward(inj); err != nil {
			return err
		}
	}
	if target == netdev.DROP {
		return errFiltered
	}
	return r.forward(d.Encapsulate())
}

// filter applies the filters to d.
func (r *Router) filter(d *netdev.Datagram) (netdev.Target, []*packet.Packet) {
	r.mu.RLock()
	filters := r.filters
	r.mu.RUnlock()
	var injected []*packet.Packet
	for _, f := range filters {
		target, pkts := f.Filter(d)
		injected = append(injected, pkts...)
		if target == netdev.DROP {
			return netdev.DROP, injected
		}
	}
	return netdev.ACCEPT, injected
}

// forward sends pkt, which must be an IPv4 packet, to the next hop.
func (r *Router) forward(pkt *packet.Packet) error {
	// Find next hop.
	dst, ok := netdev.Destination(pkt)
	if !ok {
		return headers.ErrTruncated
	}
	r.mu.RLock()
	nextHop := r.srt[dst]
	r.mu.RUnlock()
	if nextHop == nil {
		return errNoRouteToHost
	}

	frags := []*packet.Packet{pkt}
	if r.MTU > 0 {
		var err error
		if frags, err = netdev.Fragment(pkt, r.MTU); err != nil {
			return err
		}
	}

	// Forward packets (non-blocking)
	for _, frag := range frags {
		select {
		case nextHop.Input() <- frag:
		default:
			return errBufferFull
		}
	}
	return nil
}
