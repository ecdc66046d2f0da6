// SPDX-License-Identifier: GPL-3.0-or-later

package dns_test

import (
	"testing"

	"github.com/miekg/dns"
	netsimdns "github.com/rbmk-project/pktbuf/netsim/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDatabase() *netsimdns.Database {
	db := netsimdns.NewDatabase()
	db.AddAddresses([]string{"dns.google"}, []string{"8.8.8.8", "2001:4860:4860::8888"})
	db.AddCNAME("www.dns.google", "dns.google")
	return db
}

func TestLookup(t *testing.T) {
	db := newDatabase()

	tests := []struct {
		name      string
		qtype     uint16
		qname     string
		wantTypes []uint16
	}{
		{"A record", dns.TypeA, "dns.google", []uint16{dns.TypeA, dns.TypeAAAA}},
		{"name is canonicalized", dns.TypeAAAA, "DNS.google", []uint16{dns.TypeA, dns.TypeAAAA}},
		{"following CNAME", dns.TypeA, "www.dns.google.", []uint16{dns.TypeCNAME, dns.TypeA, dns.TypeAAAA}},
		{"CNAME itself", dns.TypeCNAME, "www.dns.google.", []uint16{dns.TypeCNAME}},
		{"missing name", dns.TypeA, "example.com", nil},
		{"missing type", dns.TypeCNAME, "dns.google", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rrs, found := db.Lookup(tt.qtype, tt.qname)
			assert.Equal(t, tt.wantTypes != nil, found)
			var types []uint16
			for _, rr := range rrs {
				types = append(types, rr.Header().Rrtype)
			}
			assert.Equal(t, tt.wantTypes, types)
		})
	}

	t.Run("alias loops terminate", func(t *testing.T) {
		db := netsimdns.NewDatabase()
		db.AddCNAME("a.example.com", "b.example.com")
		db.AddCNAME("b.example.com", "a.example.com")
		rrs, found := db.Lookup(dns.TypeA, "a.example.com")
		assert.False(t, found)
		assert.Nil(t, rrs)
	})

	t.Run("a new alias replaces the previous one", func(t *testing.T) {
		db := newDatabase()
		db.AddAddresses([]string{"example.com"}, []string{"93.184.216.34"})
		db.AddCNAME("www.dns.google", "example.com")
		rrs, found := db.Lookup(dns.TypeA, "www.dns.google")
		require.True(t, found)
		require.Len(t, rrs, 2)
		assert.Equal(t, "example.com.", rrs[0].(*dns.CNAME).Target)
		assert.Equal(t, "93.184.216.34", rrs[1].(*dns.A).A.String())
	})

	t.Run("invalid addresses panic", func(t *testing.T) {
		assert.Panics(t, func() { db.AddAddresses([]string{"x.org"}, []string{"not-an-ip"}) })
	})
}

func TestReply(t *testing.T) {
	db := newDatabase()

	t.Run("found", func(t *testing.T) {
		query := new(dns.Msg).SetQuestion("dns.google.", dns.TypeA)
		resp, ok := db.Reply(query)
		require.True(t, ok)
		assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
		assert.Equal(t, query.Id, resp.Id)
		require.Len(t, resp.Answer, 2)
		assert.Equal(t, "8.8.8.8", resp.Answer[0].(*dns.A).A.String())
	})

	t.Run("not found", func(t *testing.T) {
		resp, ok := db.Reply(new(dns.Msg).SetQuestion("example.com.", dns.TypeA))
		require.True(t, ok)
		assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	})

	t.Run("unsupported type", func(t *testing.T) {
		resp, ok := db.Reply(new(dns.Msg).SetQuestion("dns.google.", dns.TypeMX))
		require.True(t, ok)
		assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	})

	t.Run("unsupported class", func(t *testing.T) {
		query := new(dns.Msg).SetQuestion("dns.google.", dns.TypeA)
		query.Question[0].Qclass = dns.ClassCHAOS
		resp, ok := db.Reply(query)
		require.True(t, ok)
		assert.Equal(t, dns.RcodeRefused, resp.Rcode)
	})

	t.Run("responses are ignored", func(t *testing.T) {
		query := new(dns.Msg).SetQuestion("dns.google.", dns.TypeA)
		query.Response = true
		_, ok := db.Reply(query)
		assert.False(t, ok)
	})
}
