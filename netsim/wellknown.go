//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Well-known host configurations for common internet services
// used in network testing scenarios.
//

package netsim

// MustNewGoogleDNSStack creates a new stack simulating dns.google.
func (s *Scenario) MustNewGoogleDNSStack() *Stack {
	return s.MustNewStack(&StackConfig{
		DomainNames: []string{
			"dns.google",
			"dns.google.com",
		},
		Addresses: []string{
			"8.8.8.8",
		},
		DNSOverUDPHandler: s.DNSHandler(),
	})
}

// MustNewExampleComStack creates a new stack simulating www.example.com,
// which runs an echo server on port 7/udp.
func (s *Scenario) MustNewExampleComStack() *Stack {
	return s.MustNewStack(&StackConfig{
		DomainNames: []string{
			"www.example.com",
			"example.com",
			"www.example.org",
			"example.org",
		},
		Addresses: []string{
			"93.184.216.34",
		},
		UDPHandlers: map[uint16]UDPHandler{
			7: EchoHandler,
		},
	})
}

// MustNewClientStack creates a new client stack with standard testing configuration.
//
// We use GARR's (Italian Research & Education Network) public address
// 193.206.158.22 as the default client address. This is chosen over
// documentation ranges (like 192.0.2.0/24) to avoid triggering bogon
// filters in network simulation scenarios, while still being associated
// with a public research institution.
//
// The stack uses Google's public DNS address as the default resolver.
func (s *Scenario) MustNewClientStack() *Stack {
	return s.MustNewStack(&StackConfig{
		Addresses: []string{
			"193.206.158.22",
		},
		ClientResolvers: []string{
			"8.8.8.8",
		},
	})
}

// BlockpageMessage is the message sent by the blockpage stack.
const BlockpageMessage = "Access to this service has been blocked by network policy.\n"

// MustNewBlockpageStack creates a new stack simulating a censorship blockpage server.
//
// It replies to any datagram received on port 7/udp with [BlockpageMessage].
func (s *Scenario) MustNewBlockpageStack() *Stack {
	handler := func(request []byte) []byte {
		return []byte(BlockpageMessage)
	}
	return s.MustNewStack(&StackConfig{
		Addresses: []string{
			"10.10.34.35",
		},
		UDPHandlers: map[uint16]UDPHandler{
			7: handler,
		},
	})
}
