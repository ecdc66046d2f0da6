// SPDX-License-Identifier: GPL-3.0-or-later

package netdev

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/rbmk-project/pktbuf/headers"
	"github.com/rbmk-project/pktbuf/packet"
)

// ErrFragmentationNeeded indicates that a packet with the don't
// fragment flag is larger than the MTU.
var ErrFragmentationNeeded = errors.New("netdev: fragmentation needed and DF set")

// minMTU is the minimum MTU of an IPv4 link.
const minMTU = 68

// Fragment splits pkt, which must be an IPv4 packet, into fragments
// that are at most mtu bytes. Packets that already fit are returned
// unchanged. The fragments share storage with pkt. On error, pkt is
// left untouched.
func Fragment(pkt *packet.Packet, mtu uint32) ([]*packet.Packet, error) {
	if pkt.Size() <= mtu {
		return []*packet.Packet{pkt}, nil
	}
	if mtu < minMTU {
		return nil, fmt.Errorf("netdev: mtu %d is smaller than %d", mtu, minMTU)
	}
	peeked := &headers.IPv4{}
	pkt.PeekHeader(peeked)
	if peeked.GoodChecksum && peeked.Flags&headers.IPv4DontFragment != 0 {
		return nil, ErrFragmentationNeeded
	}
	ip, err := headers.RemoveIPv4(pkt)
	if err != nil {
		return nil, err
	}
	chunk := (mtu - 20) &^ 7
	size := pkt.Size()
	var out []*packet.Packet
	for offset := uint32(0); offset < size; offset += chunk {
		length := min(chunk, size-offset)
		frag := pkt.CreateFragment(offset, length)
		hdr := *ip
		hdr.FragmentOffset = ip.FragmentOffset + uint16(offset/8)
		hdr.PayloadSize = uint16(length)
		if offset+length < size {
			hdr.Flags |= headers.IPv4MoreFragments
		}
		frag.AddHeader(&hdr)
		out = append(out, frag)
	}
	return out, nil
}

// DefaultReassemblyTimeout is the default [*Reassembler] timeout.
const DefaultReassemblyTimeout = 30 * time.Second

// fragmentKey identifies the fragments of a datagram.
type fragmentKey struct {
	src      netip.Addr
	dst      netip.Addr
	id       uint16
	protocol uint8
}

// fragmentSet contains the fragments received so far.
type fragmentSet struct {
	first   *headers.IPv4
	pieces  map[uint32]*packet.Packet
	total   uint32
	hasLast bool
	created time.Time
}

// Reassembler reassembles IPv4 fragments. It is safe to use from
// multiple goroutines. The zero value is ready to use.
type Reassembler struct {
	// Timeout is the OPTIONAL time after which incomplete datagrams
	// are discarded. If zero, we use [DefaultReassemblyTimeout].
	Timeout time.Duration

	mu      sync.Mutex
	pending map[fragmentKey]*fragmentSet
}

// Add adds a fragment with the given IPv4 header and payload. When the
// fragment completes a datagram, Add returns the header and payload of
// the whole datagram and true.
func (r *Reassembler) Add(ip *headers.IPv4, payload *packet.Packet) (*headers.IPv4, *packet.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.expireLocked(now)
	if r.pending == nil {
		r.pending = make(map[fragmentKey]*fragmentSet)
	}
	key := fragmentKey{src: ip.Source, dst: ip.Destination, id: ip.Identification, protocol: ip.Protocol}
	set := r.pending[key]
	if set == nil {
		set = &fragmentSet{pieces: make(map[uint32]*packet.Packet), created: now}
		r.pending[key] = set
	}
	offset := uint32(ip.FragmentOffset) * 8
	if offset == 0 {
		set.first = ip
	}
	if ip.Flags&headers.IPv4MoreFragments == 0 {
		set.total = offset + payload.Size()
		set.hasLast = true
	}
	set.pieces[offset] = payload
	whole, ok := set.assemble()
	if !ok {
		return nil, nil, false
	}
	delete(r.pending, key)
	hdr := *set.first
	hdr.Flags &^= headers.IPv4MoreFragments
	hdr.PayloadSize = uint16(whole.Size())
	return &hdr, whole, true
}

// Pending returns the number of incomplete datagrams.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// expireLocked discards the incomplete datagrams that are too old.
func (r *Reassembler) expireLocked(now time.Time) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	for key, set := range r.pending {
		if now.Sub(set.created) > timeout {
			delete(r.pending, key)
		}
	}
}

// assemble concatenates the pieces when they cover the whole datagram.
func (set *fragmentSet) assemble() (*packet.Packet, bool) {
	if !set.hasLast || set.first == nil {
		return nil, false
	}
	var chain []*packet.Packet
	for offset := uint32(0); offset < set.total; {
		piece, found := set.pieces[offset]
		if !found || piece.Size() == 0 {
			return nil, false
		}
		chain = append(chain, piece)
		offset += piece.Size()
	}
	whole := packet.NewEmpty()
	for _, piece := range chain {
		whole.AddAtEnd(piece)
	}
	return whole, true
}
