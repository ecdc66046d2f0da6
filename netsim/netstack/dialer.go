//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Dialer implementation
//

package netstack

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/dnscore"
)

// ErrNoConfiguredResolvers is returned when there are no configured resolvers.
var ErrNoConfiguredResolvers = errors.New("no configured resolvers")

// ErrNoAddresses is returned when a lookup does not yield any IPv4 address.
var ErrNoAddresses = errors.New("no IPv4 addresses for domain")

// DialContext dials a network address.
//
// When the address contains a domain name, we resolve it using the
// configured resolvers and then try each resulting endpoint in sequence.
func (ns *Stack) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	// Short circuit for the case where we're dialing for an IP address
	domain, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(domain) != nil {
		return ns.dialContext(ctx, network, address)
	}

	// Otherwise, resolve and sequentially attempt each endpoint.
	addrs, err := ns.lookupHost(ctx, domain)
	if err != nil {
		return nil, err
	}
	var errv []error
	for _, addr := range addrs {
		conn, err := ns.dialContext(ctx, network, net.JoinHostPort(addr, port))
		if conn != nil && err == nil {
			return conn, nil
		}
		errv = append(errv, err)
	}
	return nil, errors.Join(errv...)
}

// dialContext dials a network address containing an IP address.
func (ns *Stack) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "udp" && network != "udp4" {
		return nil, EPROTONOSUPPORT
	}
	port, err := ns.dial(address)
	if err != nil {
		return nil, err
	}
	return ns.newUDPConn(ctx, port), nil
}

// lookupHost resolves the IPv4 addresses of domain, trying each
// configured resolver in sequence until one of them succeeds.
func (ns *Stack) lookupHost(ctx context.Context, domain string) ([]string, error) {
	ns.portmu.RLock()
	resolvers := slices.Clone(ns.resolvers)
	ns.portmu.RUnlock()
	if len(resolvers) <= 0 {
		return nil, ErrNoConfiguredResolvers
	}

	t0 := time.Now()
	ns.logContext(ctx, slog.LevelInfo, "lookupHostStart",
		slog.String("domain", domain),
		slog.Time("t", t0),
	)

	txp := &dnscore.Transport{DialContext: ns.dialContext}
	var (
		addrs []string
		errv  []error
	)
	for _, server := range resolvers {
		found, err := ns.lookupA(ctx, txp, server, domain)
		if err != nil {
			errv = append(errv, err)
			continue
		}
		addrs, errv = found, nil
		break
	}
	err := errors.Join(errv...)

	ns.logContext(ctx, slog.LevelInfo, "lookupHostDone",
		slog.String("domain", domain),
		slog.Any("addrs", addrs),
		slog.Any("err", err),
		slog.String("errClass", errclass.New(err)),
		slog.Time("t0", t0),
		slog.Time("t", time.Now()),
	)
	return addrs, err
}

// lookupA sends an A query for domain to the given server.
func (ns *Stack) lookupA(ctx context.Context,
	txp *dnscore.Transport, server netip.AddrPort, domain string) ([]string, error) {
	query, err := dnscore.NewQuery(dns.Fqdn(domain), dns.TypeA)
	if err != nil {
		return nil, err
	}
	addr := dnscore.NewServerAddr(dnscore.ProtocolUDP, server.String())
	resp, err := txp.Query(ctx, addr, query)
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	if len(addrs) <= 0 {
		return nil, ErrNoAddresses
	}
	return addrs, nil
}

// logContext is like log but uses the given context.
func (ns *Stack) logContext(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger := ns.logger.Load(); logger != nil {
		logger.LogAttrs(ctx, level, msg, attrs...)
	}
}
