// SPDX-License-Identifier: GPL-3.0-or-later

package censor

import (
	"github.com/rbmk-project/pktbuf/headers"
	netsimdns "github.com/rbmk-project/pktbuf/netsim/dns"
	"github.com/rbmk-project/pktbuf/netsim/netdev"
	"github.com/rbmk-project/pktbuf/packet"
)

// Database is an alias for [netsimdns.Database].
type Database = netsimdns.Database

// DNSPoisoner implements GFW-style DNS poisoning
type DNSPoisoner struct {
	db *Database
}

// NewDNSPoisoner creates a new DNS poisoner that injects
// responses as configured in the given database.
func NewDNSPoisoner(db *Database) *DNSPoisoner {
	return &DNSPoisoner{db: db}
}

var _ netdev.Filter = &DNSPoisoner{}

// Filter implements [netdev.Filter].
func (p *DNSPoisoner) Filter(d *netdev.Datagram) (netdev.Target, []*packet.Packet) {
	// Only process DNS queries
	if d.UDP.DestinationPort != 53 {
		return netdev.ACCEPT, nil
	}

	// Parse DNS query without consuming the payload
	header := &headers.DNS{}
	d.Payload.PeekHeader(header)
	if header.Err != nil {
		return netdev.ACCEPT, nil
	}

	// Only process queries whose name is in the database
	response, ok := p.db.Reply(header.Msg)
	if !ok || len(response.Answer) <= 0 {
		return netdev.ACCEPT, nil
	}

	// Create the spoofed datagram
	payload := packet.NewEmpty()
	payload.AddHeader(headers.NewDNS(response))
	spoofed := netdev.NewDatagram(d.Destination(), d.Source(), payload)

	// Let original query continue
	return netdev.ACCEPT, []*packet.Packet{spoofed.Encapsulate()}
}
