// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/pktbuf/closepool"
	"github.com/rbmk-project/pktbuf/netsim"
	"github.com/rbmk-project/pktbuf/netsim/router"
)

// This example shows how to use a router to simulate a network
// topology consisting of a client and multiple servers.
func Example_router() {
	// Create a pool to close resources when done.
	cpool := closepool.New()
	defer cpool.Close()

	// Create the server stack.
	serverAddr := netip.MustParseAddr("8.8.8.8")
	serverStack := netsim.NewStack(serverAddr)
	cpool.Add(serverStack)

	// Create the client stack.
	clientAddr := netip.MustParseAddr("130.192.91.211")
	clientStack := netsim.NewStack(clientAddr)
	cpool.Add(clientStack)

	// Create and configure router, fragmenting
	// packets larger than the Ethernet MTU.
	r := router.New()
	r.MTU = 1500
	r.Attach(clientStack)
	r.Attach(serverStack)
	r.AddRoute(clientStack)
	r.AddRoute(serverStack)

	// Create a context with a watchdog timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Create the server UDP listener.
	serverEndpointDNS := netip.AddrPortFrom(serverAddr, 53)
	serverConn, err := serverStack.ListenPacket(ctx, "udp", serverEndpointDNS.String())
	if err != nil {
		log.Fatal(err)
	}
	cpool.Add(serverConn)

	// Start the server in the background. The server returns so
	// many records that the response needs to be fragmented.
	serverDNS := &dns.Server{
		PacketConn: serverConn,
		UDPSize:    dns.MaxMsgSize,
		Handler: dns.HandlerFunc(func(rw dns.ResponseWriter, query *dns.Msg) {
			resp := &dns.Msg{}
			resp.SetReply(query)
			for idx := range 200 {
				resp.Answer = append(resp.Answer, &dns.A{
					Hdr: dns.RR_Header{
						Name:   query.Question[0].Name,
						Rrtype: dns.TypeA,
						Class:  dns.ClassINET,
						Ttl:    3600,
					},
					A: net.IPv4(10, 0, byte(idx/250), byte(idx%250+1)),
				})
			}
			if err := rw.WriteMsg(resp); err != nil {
				log.Fatal(err)
			}
		}),
	}
	go serverDNS.ActivateAndServe()
	defer serverDNS.Shutdown()

	// Create the client connection with the DNS server.
	conn, err := clientStack.DialContext(ctx, "udp", serverEndpointDNS.String())
	if err != nil {
		log.Fatal(err)
	}
	cpool.Add(conn)

	// Perform the DNS round trip, advertising a large buffer
	query := new(dns.Msg).SetQuestion("dns.google.", dns.TypeA)
	query.SetEdns0(dns.MaxMsgSize, false)
	clientDNS := &dns.Client{UDPSize: dns.MaxMsgSize}
	resp, _, err := clientDNS.ExchangeWithConnContext(ctx, query, &dns.Conn{Conn: conn, UDPSize: dns.MaxMsgSize})
	if err != nil {
		log.Fatal(err)
	}

	// Print a summary of the response
	fmt.Printf("%d answers, truncated: %v\n", len(resp.Answer), resp.Truncated)

	// Output:
	// 200 answers, truncated: false
}
