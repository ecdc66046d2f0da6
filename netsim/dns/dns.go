// SPDX-License-Identifier: GPL-3.0-or-later

// Package dns contains the name database answering the queries sent
// to the simulated DNS servers.
package dns

import (
	"net/netip"
	"slices"
	"sync"

	"github.com/miekg/dns"
	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/dnscore/dnscoretest"
)

// Handler is an alias for dnscoretest.Handler.
type Handler = dnscoretest.Handler

// recordTTL is the TTL of every record we serve.
const recordTTL = 3600

// maxCNAMEChain bounds the aliases followed by a lookup.
const maxCNAMEChain = 10

// entry contains what we know about a canonical name.
type entry struct {
	// alias is the CNAME target or empty.
	alias string

	// addrs contains the A and AAAA addresses in insertion order.
	addrs []netip.Addr
}

// records returns the resource records of the entry for name.
func (e *entry) records(name string) []dns.RR {
	var rrs []dns.RR
	if e.alias != "" {
		rrs = append(rrs, &dns.CNAME{
			Hdr:    newHeader(name, dns.TypeCNAME),
			Target: e.alias,
		})
	}
	for _, addr := range e.addrs {
		if addr.Is4() {
			rrs = append(rrs, &dns.A{Hdr: newHeader(name, dns.TypeA), A: addr.AsSlice()})
			continue
		}
		rrs = append(rrs, &dns.AAAA{Hdr: newHeader(name, dns.TypeAAAA), AAAA: addr.AsSlice()})
	}
	return rrs
}

func newHeader(name string, rrtype uint16) dns.RR_Header {
	return dns.RR_Header{Name: name, Rrtype: rrtype, Class: dns.ClassINET, Ttl: recordTTL}
}

// Database maps domain names to aliases and addresses. A scenario
// shares a single [*Database] among all its DNS servers.
//
// A [*Database] is safe for concurrent use.
type Database struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewDatabase creates an empty [*Database].
func NewDatabase() *Database {
	return &Database{entries: make(map[string]*entry)}
}

// entryLocked returns the entry for the canonical name, creating it.
func (dd *Database) entryLocked(name string) *entry {
	e := dd.entries[name]
	if e == nil {
		e = &entry{}
		dd.entries[name] = e
	}
	return e
}

// AddCNAME makes name an alias of target, replacing any previous alias.
func (dd *Database) AddCNAME(name, target string) {
	dd.mu.Lock()
	dd.entryLocked(dns.CanonicalName(name)).alias = dns.CanonicalName(target)
	dd.mu.Unlock()
}

// AddAddresses maps each name to all the given IPv4 and IPv6 addresses.
//
// This method panics if an address cannot be parsed.
func (dd *Database) AddAddresses(names, addresses []string) {
	parsed := make([]netip.Addr, 0, len(addresses))
	for _, addr := range addresses {
		parsed = append(parsed, runtimex.Try1(netip.ParseAddr(addr)).Unmap())
	}
	dd.mu.Lock()
	defer dd.mu.Unlock()
	for _, name := range names {
		e := dd.entryLocked(dns.CanonicalName(name))
		e.addrs = append(e.addrs, parsed...)
	}
}

// Lookup returns the records of name. When name is an alias, the result
// contains the whole CNAME chain followed by the records of the target.
// The boolean is false unless some record has the given qtype.
func (dd *Database) Lookup(qtype uint16, name string) ([]dns.RR, bool) {
	dd.mu.RLock()
	defer dd.mu.RUnlock()
	name = dns.CanonicalName(name)
	var chain []dns.RR
	for range maxCNAMEChain {
		e := dd.entries[name]
		if e == nil {
			return nil, false
		}
		rrs := e.records(name)
		chain = append(chain, rrs...)
		if slices.ContainsFunc(rrs, func(rr dns.RR) bool { return rr.Header().Rrtype == qtype }) {
			return chain, true
		}
		if e.alias == "" {
			return nil, false
		}
		name = e.alias
	}
	return nil, false
}

// Ensure [*Database] implements [Handler].
var _ Handler = (*Database)(nil)

// Handle implements [Handler]. Malformed queries get no response.
func (dd *Database) Handle(rw dnscoretest.ResponseWriter, rawQuery []byte) {
	query := new(dns.Msg)
	if query.Unpack(rawQuery) != nil {
		return
	}
	if response, ok := dd.Reply(query); ok {
		if rawResp, err := response.Pack(); err == nil {
			rw.Write(rawResp)
		}
	}
}

// Reply builds the response to query. The boolean is false when query
// is not a standard query with a single question.
//
// Queries for classes other than IN are refused. Queries for types other
// than A, AAAA and CNAME, like queries for missing names, get NXDOMAIN.
func (dd *Database) Reply(query *dns.Msg) (*dns.Msg, bool) {
	if query.Response || query.Opcode != dns.OpcodeQuery || len(query.Question) != 1 {
		return nil, false
	}
	response := new(dns.Msg).SetReply(query)
	question := query.Question[0]
	if question.Qclass != dns.ClassINET {
		response.Rcode = dns.RcodeRefused
		return response, true
	}
	var found bool
	switch question.Qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeCNAME:
		response.Answer, found = dd.Lookup(question.Qtype, question.Name)
	}
	if !found {
		response.Rcode = dns.RcodeNameError
	}
	return response, true
}
