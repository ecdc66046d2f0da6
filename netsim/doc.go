// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim provides a simple UDP/IPv4 network simulation framework
built on top of [packet.Packet] that developers can use to write
integration tests.

# Usage and Features

The [NewStack] function creates a new, simulated network stack
using the given IP addresses. You can invoke usual functions on the
stack, such as:

- DialContext
- ListenPacket

These functions return simulated [net.Conn] and [net.PacketConn].

When a connection sends data, the stack copies the data into a
[*packet.Packet], adds the UDP and IPv4 headers, and emits the packet on
the channel returned by [*Stack.Output]. To send a packet to a [*Stack],
you need to post the packet on the channel returned by [*Stack.Input].
The [*Link] type allows connecting two devices such that they can send
packets to each other, modeling a data rate, an error model and an
optional pcap capture. The [router] package forwards packets between
many devices, applies censorship filters and fragments packets larger
than the configured MTU. The [*Scenario] type wires stacks to a central
router and starts well-known services.

Since packets carry byte tags, information such as the flow identifier
added by the sending port survives links, routers, fragmentation and
reassembly, and is available to the receiving stack.

The errors returned by the stack are the same [syscall.Errno] the
standard library and the kernel would generate in similar cases (we use
the [x/sys] repository to pull system-dependent error values).

This package contains comprehensive examples showing how to use it.
*/
package netsim
