//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Network stack
//

package netstack

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/pktbuf/headers"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
)

// firstEphemeralPort is the first port we use for dialing.
const firstEphemeralPort = 49152

// Stack models a UDP/IPv4 network stack.
//
// The stack is a [netdev.NetworkDevice]: attach it to a router, or
// to a link, to exchange packets with other stacks.
type Stack struct {
	// addrs contains the stack network addresses.
	addrs []netip.Addr

	// eof unblocks any blocking operation when the stack is closed.
	eof chan struct{}

	// eofOnce ensures we close just once.
	eofOnce sync.Once

	// input is the input channel for packets.
	input chan *packet.Packet

	// logger is the OPTIONAL logger.
	logger atomic.Pointer[slog.Logger]

	// nextflow generates the flow IDs of the ports.
	nextflow atomic.Uint32

	// nextport tracks the next available ephemeral port.
	nextport uint16

	// output is the output channel for packets.
	output chan *packet.Packet

	// portmu protects nextport, ports and resolvers.
	portmu sync.RWMutex

	// ports contains the open ports.
	ports map[PortAddr]*Port

	// reassembler reassembles incoming fragments.
	reassembler *netdev.Reassembler

	// resolvers contains the DNS resolvers used for dialing domain names.
	resolvers []netip.AddrPort
}

// New creates a new [*Stack] instance and starts a
// goroutine demuxing incoming traffic. Remember to invoke
// Close to stop any muxing/demuxing goroutine.
func New(addrs ...netip.Addr) *Stack {
	input, output := netdev.NewIOChannels()
	ns := &Stack{
		addrs:       addrs,
		eof:         make(chan struct{}),
		eofOnce:     sync.Once{},
		input:       input,
		nextport:    firstEphemeralPort,
		output:      output,
		portmu:      sync.RWMutex{},
		ports:       map[PortAddr]*Port{},
		reassembler: &netdev.Reassembler{},
	}
	go ns.demuxLoop()
	return ns
}

// Ensure [*Stack] implements [netdev.NetworkDevice].
var _ netdev.NetworkDevice = &Stack{}

// SetLogger sets the logger used by the stack and by its conns.
func (ns *Stack) SetLogger(logger *slog.Logger) {
	ns.logger.Store(logger)
}

// SetResolvers sets the DNS resolvers used by DialContext.
func (ns *Stack) SetResolvers(resolvers ...netip.AddrPort) {
	ns.portmu.Lock()
	ns.resolvers = slices.Clone(resolvers)
	ns.portmu.Unlock()
}

// Addresses returns the network stack addresses.
func (ns *Stack) Addresses() []netip.Addr {
	return append([]netip.Addr{}, ns.addrs...)
}

// EOF returns the channel to wait for the stack to close.
func (ns *Stack) EOF() <-chan struct{} {
	return ns.eof
}

// Output returns the channel from which to read outgoing packets.
func (ns *Stack) Output() <-chan *packet.Packet {
	return ns.output
}

// Input returns the channel where to write incoming packets.
func (ns *Stack) Input() chan<- *packet.Packet {
	return ns.input
}

// Close closes the network stack and stops all traffic muxing/demuxing.
func (ns *Stack) Close() error {
	ns.eofOnce.Do(func() { close(ns.eof) })
	return nil
}

// demuxLoop demuxes incoming traffic to the proper port.
func (ns *Stack) demuxLoop() {
	for {
		select {
		case <-ns.eof:
			return
		case pkt := <-ns.input:
			uid := pkt.UID()
			if err := ns.demux(pkt); err != nil {
				ns.log(slog.LevelDebug, "demuxDrop",
					slog.Uint64("uid", uid),
					slog.Any("err", err),
					slog.String("errClass", errclass.New(err)),
				)
			}
		}
	}
}

// demux demuxes a single incoming [*packet.Packet].
func (ns *Stack) demux(pkt *packet.Packet) error {
	ip, err := headers.RemoveIPv4(pkt)
	if err != nil {
		return err
	}

	// Discard packet if the address is not local.
	if !ns.isLocalAddr(ip.Destination) {
		return EHOSTUNREACH
	}

	// Wait for all the fragments before going on.
	if netdev.IsFragment(ip) {
		whole, payload, ok := ns.reassembler.Add(ip, pkt)
		if !ok {
			return nil
		}
		ip, pkt = whole, payload
	}
	d, err := netdev.DecodeUDP(ip, pkt)
	if err != nil {
		return err
	}

	// Find a route using the five tuple then fallback using
	// the three tuple for listening sockets.
	ns.portmu.RLock()
	port := ns.findPortLocked(d)
	ns.portmu.RUnlock()
	if port == nil {
		return EHOSTUNREACH
	}

	// Actually deliver the datagram to the port, dropping
	// it when the port queue is full.
	select {
	case <-port.eof:
		return net.ErrClosed
	case <-ns.eof:
		return ENETDOWN
	case port.input <- d:
		return nil
	default:
		return ENOBUFS
	}
}

// findPortLocked finds a port using the given datagram.
//
// The algorithm is as follows:
//
// 1. first try using the five tuple.
//
// 2. if not found, try using the three tuple, where
// the remote address is invalid.
//
// 3. if not found, use a five tuple where the
// local IP address is unspecified.
//
// 4. if not found, use a three tuple where the
// the remote address is invalid, and the IP local
// address is unspecified.
//
// 5. otherwise, return nil.
//
// The caller must hold the portmu lock.
func (ns *Stack) findPortLocked(d *netdev.Datagram) *Port {
	local, remote := d.Destination(), d.Source()

	// 1.
	if port := ns.ports[PortAddr{LocalAddr: local, RemoteAddr: remote}]; port != nil {
		return port
	}

	// 2.
	if port := ns.ports[PortAddr{LocalAddr: local}]; port != nil {
		return port
	}

	for _, ipAddr := range []netip.Addr{netip.IPv4Unspecified(), netip.IPv6Unspecified()} {
		unspec := netip.AddrPortFrom(ipAddr, local.Port())

		// 3.
		if port := ns.ports[PortAddr{LocalAddr: unspec, RemoteAddr: remote}]; port != nil {
			return port
		}

		// 4.
		if port := ns.ports[PortAddr{LocalAddr: unspec}]; port != nil {
			return port
		}
	}

	return nil
}

// ListenPacket creates a new listening [net.PacketConn].
func (ns *Stack) ListenPacket(ctx context.Context, network, address string) (net.PacketConn, error) {
	if network != "udp" && network != "udp4" {
		return nil, EPROTONOSUPPORT
	}
	port, err := ns.listen(address)
	if err != nil {
		return nil, err
	}
	return ns.newUDPConn(ctx, port), nil
}

// isLocalAddr returns true if the address is local to the stack.
func (ns *Stack) isLocalAddr(addr netip.Addr) bool {
	return slices.Contains(ns.addrs, addr.Unmap())
}

// listen creates a new listening [*Port].
func (ns *Stack) listen(address string) (*Port, error) {
	// Run while locking the available ports.
	ns.portmu.Lock()
	defer ns.portmu.Unlock()

	// Setup the local address handling the cases in which the
	// address and/or the port are the zero value.
	laddr, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, EINVAL
	}
	laddr = netip.AddrPortFrom(laddr.Addr().Unmap(), laddr.Port())
	if !laddr.Addr().IsUnspecified() && !ns.isLocalAddr(laddr.Addr()) {
		return nil, EADDRNOTAVAIL
	}
	if laddr.Port() <= 0 {
		lport, err := ns.newEphemeralPortNumberLocked()
		if err != nil {
			return nil, err
		}
		laddr = netip.AddrPortFrom(laddr.Addr(), lport)
	}

	// The remote address is always unspecified in this case.
	var raddr netip.AddrPort

	// Create the port proper and setup muxing traffic.
	return ns.newPortLocked(laddr, raddr)
}

// dial creates a new connected [*Port].
func (ns *Stack) dial(address string) (*Port, error) {
	// Run while locking the available ports.
	ns.portmu.Lock()
	defer ns.portmu.Unlock()

	// Setup the remote address and make sure it is actually specified.
	raddr, err := netip.ParseAddrPort(address)
	if err != nil {
		return nil, EINVAL
	}
	raddr = netip.AddrPortFrom(raddr.Addr().Unmap(), raddr.Port())
	if raddr.Addr().IsUnspecified() || raddr.Port() <= 0 {
		return nil, EHOSTUNREACH
	}

	// We only speak IPv4, so we need an IPv4 address on both ends.
	if !raddr.Addr().Is4() {
		return nil, EHOSTUNREACH
	}
	idx := slices.IndexFunc(ns.addrs, func(addr netip.Addr) bool {
		return addr.Unmap().Is4()
	})
	if idx < 0 {
		return nil, EADDRNOTAVAIL
	}

	// Construct the local address and use a local port.
	lport, err := ns.newEphemeralPortNumberLocked()
	if err != nil {
		return nil, err
	}
	laddr := netip.AddrPortFrom(ns.addrs[idx].Unmap(), lport)

	// Create the port proper and setup muxing traffic.
	return ns.newPortLocked(laddr, raddr)
}

// newEphemeralPortNumberLocked opens a new local port, if possible, or returns an error.
//
// You must invoke this method while holding the portmu lock.
func (ns *Stack) newEphemeralPortNumberLocked() (uint16, error) {
	if ns.nextport >= math.MaxUint16 {
		return 0, EADDRINUSE
	}
	port := ns.nextport
	ns.nextport = port + 1
	return port, nil
}

// newPortLocked creates a new [*Port] instance.
//
// You must invoke this method while holding the portmu lock.
func (ns *Stack) newPortLocked(laddr, raddr netip.AddrPort) (*Port, error) {
	// Create the port address and make sure we can actually create the port.
	addr := &PortAddr{
		LocalAddr:  laddr,
		RemoteAddr: raddr,
	}
	if _, ok := ns.ports[*addr]; ok {
		return nil, EADDRINUSE
	}
	port := NewPort(ns, addr, ns.nextflow.Add(1))

	// Remember the port and routing traffic
	ns.log(slog.LevelDebug, "portOpen", slog.String("port", addr.String()))
	ns.ports[*addr] = port
	go ns.muxOutgoingTraffic(port)
	return port, nil
}

// muxOutgoingTraffic merges the traffic emitted by all ports.
func (ns *Stack) muxOutgoingTraffic(port *Port) {
	for {
		select {
		case <-port.eof:
			return
		case <-ns.eof:
			return
		case pkt := <-port.output:
			select {
			case ns.output <- pkt:
			case <-ns.eof:
				return
			}
		}
	}
}

// ClosePort implements [PortStack].
func (ns *Stack) ClosePort(addr *PortAddr) {
	ns.log(slog.LevelDebug, "portClose", slog.String("port", addr.String()))
	ns.portmu.Lock()
	delete(ns.ports, *addr)
	ns.portmu.Unlock()
}

// log emits a log message if the stack has a logger.
func (ns *Stack) log(level slog.Level, msg string, attrs ...slog.Attr) {
	if logger := ns.logger.Load(); logger != nil {
		attrs = append(attrs, slog.Any("stack", ns.addrs))
		logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
