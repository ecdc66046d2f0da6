// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/dnscore/dnscoretest"
)

// UDPHandler returns the response to a UDP request. A nil
// response means that the server does not reply.
type UDPHandler func(request []byte) []byte

// EchoHandler is a [UDPHandler] sending back each request.
func EchoHandler(request []byte) []byte {
	return request
}

// StackConfig contains configuration for creating a new network stack.
type StackConfig struct {
	// Addresses contains the IP addresses for this stack.
	//
	// The config is invalid if there is not at least one address.
	Addresses []string

	// ClientResolvers optionally specifies resolvers for client stacks.
	ClientResolvers []string

	// DNSOverUDPHandler optionally specifies a handler for DNS-over-UDP.
	DNSOverUDPHandler DNSHandler

	// DomainNames contains the optional domain names associated with this stack.
	//
	// If there are associated domain names, we will register them
	// into the scenario DNS database.
	DomainNames []string

	// UDPHandlers optionally maps UDP ports to the handlers serving them.
	UDPHandlers map[uint16]UDPHandler
}

// validate returns an error if the configuration is not valid.
func (cfg *StackConfig) validate() error {
	if len(cfg.Addresses) < 1 {
		return errors.New("at least one address is required")
	}
	if _, found := cfg.UDPHandlers[53]; found && cfg.DNSOverUDPHandler != nil {
		return errors.New("port 53/udp has both a DNS and a UDP handler")
	}
	return nil
}

// newBaseStack returns the base stack given a [*StackConfig].
func (s *Scenario) newBaseStack(cfg *StackConfig) (*Stack, error) {
	addrs := make([]netip.Addr, len(cfg.Addresses))
	for idx, addr := range cfg.Addresses {
		pa, err := netip.ParseAddr(addr)
		if err != nil {
			return nil, err
		}
		addrs[idx] = pa
	}
	stack := NewStack(addrs...)
	stack.SetLogger(s.logger)
	return stack, nil
}

// setupClientResolvers configures the client resolvers for the stack.
func (cfg *StackConfig) setupClientResolvers(stack *Stack) error {
	var ress []netip.AddrPort
	for _, addr := range cfg.ClientResolvers {
		paddr, err := netip.ParseAddrPort(net.JoinHostPort(addr, "53"))
		if err != nil {
			return err
		}
		ress = append(ress, paddr)
	}
	stack.SetResolvers(ress...)
	return nil
}

// mustSetupDNSOverUDP configures the DNS-over-UDP handler for the stack.
func (s *Scenario) mustSetupDNSOverUDP(stack *Stack, cfg *StackConfig) {
	server := &dnscoretest.Server{
		ListenPacket: func(network, address string) (net.PacketConn, error) {
			return stack.ListenPacket(context.Background(), "udp", "0.0.0.0:53")
		},
	}
	<-server.StartUDP(cfg.DNSOverUDPHandler)
	s.pool.Add(server)
}

// mustSetupUDPHandler configures a [UDPHandler] serving the given port.
func (s *Scenario) mustSetupUDPHandler(stack *Stack, port uint16, handler UDPHandler) {
	address := netip.AddrPortFrom(netip.IPv4Unspecified(), port).String()
	conn := runtimex.Try1(stack.ListenPacket(context.Background(), "udp", address))
	s.pool.Add(conn)
	go serveUDP(conn, handler)
}

// serveUDP serves requests until the conn is closed.
func serveUDP(conn net.PacketConn, handler UDPHandler) {
	buffer := make([]byte, 1<<16)
	for {
		count, addr, err := conn.ReadFrom(buffer)
		if err != nil {
			return
		}
		if resp := handler(buffer[:count]); resp != nil {
			conn.WriteTo(resp, addr)
		}
	}
}
