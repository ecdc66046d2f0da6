// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package censor implements common internet censorship techniques for testing.

This package provides filters that model different types of censorship:

All filters implement the [netdev.Filter] interface and can be composed to model
complex censorship scenarios. The implementations focus on common real-world
censorship techniques while remaining simple enough for testing purposes.

# DNS Response Injection

The [*DNSPoisoner] type implements GFW-style DNS poisoning by injecting spoofed
responses. It is based on a database of poisoned responses to inject. Legitimate
queries are allowed to pass through, thus the client is expected to receive
multiple responses for each censored query.

# Flow Blackholing

The [*Blackholer] type implements blackholing with optional pattern
matching. Once triggered, it blocks all datagrams of the matching flow
for a configurable duration. This models censors that completely block specific
traffic patterns or endpoints, causing timeouts. In addition, this filter can
remember the blocked flows, thus causing residual censorship effects.

# Destination NAT

The [*DNatter] type implements transparent proxying through destination NAT
(DNAT): it allows redirecting traffic from specific sources to alternative destinations
while rewriting the source of the return traffic. This models censors that redirect
traffic to warning pages or surveillance systems.

Since filters modify parsed headers, routers recompute the IPv4 and UDP
checksums when they serialize the datagram again.
*/
package censor
