//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UDP port implementation.
//

package netstack

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rbmk-project/pktbuf/headers"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
)

// PortAddr is the [*Port] address.
type PortAddr struct {
	// LocalAddr is the local address. This field must
	// always have valid address and port.
	LocalAddr netip.AddrPort

	// RemoteAddr is the remote address. This field
	// may be zero for non-connected ports.
	RemoteAddr netip.AddrPort
}

// String returns the string representation of the [*PortAddr].
func (pa *PortAddr) String() string {
	raddr := pa.RemoteAddr.String()
	if !pa.RemoteAddr.IsValid() {
		raddr = "*:*"
	}
	return fmt.Sprintf("%s -> %s udp", pa.LocalAddr, raddr)
}

// PortStack is the stack to which a [*Port] is attached.
type PortStack interface {
	// Addresses returns the stack addresses.
	Addresses() []netip.Addr

	// ClosePort closes the given port.
	ClosePort(addr *PortAddr)
}

// Port models an open UDP port.
type Port struct {
	// addr contains the port address.
	addr *PortAddr

	// eof unblocks any pending read.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once

	// flowID is the flow identifier tagging the payloads we send.
	flowID uint32

	// input is the channel where we receive input.
	input chan *netdev.Datagram

	// output is the channel where we post output.
	output chan *packet.Packet

	// peermu protects peers.
	peermu sync.Mutex

	// peers maps the remote endpoints of a port bound to the
	// unspecified address to the local address they reached.
	peers map[netip.AddrPort]netip.Addr

	// rd is the deadline for read operations.
	rd *deadline

	// stack is the underlying net stack.
	stack PortStack

	// wd is the deadline for write operations.
	wd *deadline
}

// maxPeers bounds the peers a listening port remembers.
const maxPeers = 1024

// portBuffer is the number of datagrams a port queues before
// the stack starts dropping them, like a socket receive buffer.
const portBuffer = 64

// NewPort creates a [*Port] instance with the given [*PortAddr].
//
// Leave the [*PortAddr] `RemoteAddr` field zero when you want to create
// a port that is not connected to a peer (i.e., a UDP listener).
//
// The flowID is added as a [*headers.FlowIDTag] to the payload of
// each datagram the port sends.
func NewPort(stack PortStack, addr *PortAddr, flowID uint32) *Port {
	return &Port{
		addr:    addr,
		eof:     make(chan struct{}),
		eofOnce: sync.Once{},
		flowID:  flowID,
		input:   make(chan *netdev.Datagram, portBuffer),
		output:  make(chan *packet.Packet),
		peermu:  sync.Mutex{},
		peers:   make(map[netip.AddrPort]netip.Addr),
		rd:      newDeadline(),
		stack:   stack,
		wd:      newDeadline(),
	}
}

// Close closes the [*Port] terminating any pending I/O.
func (gp *Port) Close() error {
	gp.eofOnce.Do(func() {
		gp.stack.ClosePort(gp.addr)
		close(gp.eof)
		gp.rd.Set(time.Time{})
		gp.wd.Set(time.Time{})
	})
	return nil
}

// LocalAddr returns the local address of this [*Port].
func (gp *Port) LocalAddr() net.Addr {
	return &Addr{gp.addr.LocalAddr}
}

// RemoteAddr returns the remote address of this [*Port].
func (gp *Port) RemoteAddr() net.Addr {
	return &Addr{gp.addr.RemoteAddr}
}

// SetDeadline sets the read and write deadlines.
func (gp *Port) SetDeadline(t time.Time) error {
	gp.SetReadDeadline(t)
	gp.SetWriteDeadline(t)
	return nil
}

// SetReadDeadline sets the read deadline.
func (gp *Port) SetReadDeadline(t time.Time) error {
	gp.rd.Set(t)
	return nil
}

// SetWriteDeadline sets the write deadline.
func (gp *Port) SetWriteDeadline(t time.Time) error {
	gp.wd.Set(t)
	return nil
}

// ReadFrom implements [net.PacketConn].
func (gp *Port) ReadFrom(buf []byte) (int, net.Addr, error) {
	d, err := gp.ReadDatagram()
	if err != nil {
		return 0, nil, err
	}
	count := d.Payload.CopyData(buf)
	return count, &Addr{d.Source()}, nil
}

// ReadDatagram receives a datagram from a remote endpoint.
//
// We discard datagrams that do not match the remote address unless the
// remote address is not set, in which case we accept all datagrams.
//
// The following errors are possible:
//
// 1. nil if we receive a datagram from the `Input` channel.
//
// 2. [net.ErrClosed] if the port is closed before we receive a datagram;
//
// 3. [os.ErrDeadlineExceeded] if the read deadline is exceeded.
func (gp *Port) ReadDatagram() (*netdev.Datagram, error) {
	for {
		select {
		case d := <-gp.input:
			// As documented, discard non-matching datagrams
			if !gp.addr.RemoteAddr.IsValid() || d.Source() == gp.addr.RemoteAddr {
				gp.rememberPeer(d)
				return d, nil
			}

		case <-gp.eof:
			return nil, net.ErrClosed

		case <-gp.rd.Wait():
			return nil, os.ErrDeadlineExceeded
		}
	}
}

// WriteTo implements [net.PacketConn].
func (gp *Port) WriteTo(data []byte, addr net.Addr) (int, error) {
	raddr, ok := addrToAddrPort(addr)
	if !ok {
		return 0, EINVAL
	}
	if err := gp.WriteDatagram(packet.NewFromBytes(data), raddr); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Write implements [net.Conn].
func (gp *Port) Write(data []byte) (int, error) {
	if err := gp.WriteDatagram(packet.NewFromBytes(data), netip.AddrPort{}); err != nil {
		return 0, err
	}
	return len(data), nil
}

// WriteDatagram encapsulates and sends the payload to a remote
// endpoint. The port takes ownership of the payload.
//
// If the `raddr` field is a zero value, we use the `RemoteAddr`
// field of the [*PortAddr]. If also such a field is a zero value,
// we return [ENOTCONN] to indicate we don't know the peer addr.
//
// Because [packet.NewFromBytes] copies the bytes, callers such as
// Write and WriteTo can reuse their buffers.
//
// The following errors are possible:
//
// 1. [ENOTCONN] if the port is not connected to a peer and the raddr is zero;
//
// 2. [EHOSTUNREACH] if the remote address is not IPv4;
//
// 3. [EMSGSIZE] if the payload does not fit into a datagram;
//
// 4. [EADDRNOTAVAIL] if the stack has no IPv4 address to send from;
//
// 5. nil if the datagram is sent (i.e., delivered to the `Output` channel);
//
// 6. [net.ErrClosed] if the port is closed before we send the datagram;
//
// 7. [os.ErrDeadlineExceeded] if the write deadline is exceeded.
func (gp *Port) WriteDatagram(payload *packet.Packet, raddr netip.AddrPort) error {
	// Attempt to figure out the remote address first
	if !raddr.IsValid() {
		raddr = gp.addr.RemoteAddr
		if !raddr.IsValid() {
			return ENOTCONN
		}
	}
	if !raddr.Addr().Unmap().Is4() {
		return EHOSTUNREACH
	}
	raddr = netip.AddrPortFrom(raddr.Addr().Unmap(), raddr.Port())
	if payload.Size() > netdev.MaxPayloadSize {
		return EMSGSIZE
	}
	laddr, ok := gp.sourceAddr(raddr)
	if !ok {
		return EADDRNOTAVAIL
	}

	// Build and send the packet.
	payload.AddTag(&headers.FlowIDTag{FlowID: gp.flowID})
	pkt := netdev.NewDatagram(laddr, raddr, payload).Encapsulate()
	select {
	case gp.output <- pkt:
		return nil
	case <-gp.eof:
		return net.ErrClosed
	case <-gp.wd.Wait():
		return os.ErrDeadlineExceeded
	}
}

// rememberPeer records which local address a peer reached, so that
// a port bound to the unspecified address replies from it.
func (gp *Port) rememberPeer(d *netdev.Datagram) {
	if !gp.addr.LocalAddr.Addr().IsUnspecified() {
		return
	}
	gp.peermu.Lock()
	defer gp.peermu.Unlock()
	if len(gp.peers) >= maxPeers {
		clear(gp.peers)
	}
	gp.peers[d.Source()] = d.Destination().Addr()
}

// sourceAddr returns the source endpoint for a datagram sent to raddr.
//
// A port bound to the unspecified address uses the local address the peer
// last reached or, for new peers, the first IPv4 address of the stack.
func (gp *Port) sourceAddr(raddr netip.AddrPort) (netip.AddrPort, bool) {
	laddr := gp.addr.LocalAddr
	if !laddr.Addr().IsUnspecified() {
		return laddr, true
	}
	gp.peermu.Lock()
	addr, found := gp.peers[raddr]
	gp.peermu.Unlock()
	if !found {
		addrs := gp.stack.Addresses()
		idx := slices.IndexFunc(addrs, func(addr netip.Addr) bool {
			return addr.Unmap().Is4()
		})
		if idx < 0 {
			return netip.AddrPort{}, false
		}
		addr = addrs[idx].Unmap()
	}
	return netip.AddrPortFrom(addr, laddr.Port()), true
}
