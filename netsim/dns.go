// SPDX-License-Identifier: GPL-3.0-or-later

package netsim

import "github.com/rbmk-project/pktbuf/netsim/dns"

// DNSHandler is an alias for [dns.Handler].
type DNSHandler = dns.Handler

// dnsDatabase is an alias for [dns.Database].
type dnsDatabase = dns.Database

// newDNSDatabase is an alias for [dns.NewDatabase].
var newDNSDatabase = dns.NewDatabase
