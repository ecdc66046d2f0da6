// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/miekg/dns"
	"github.com/rbmk-project/pktbuf/netsim"
	"github.com/rbmk-project/pktbuf/netsim/censor"
	netsimdns "github.com/rbmk-project/pktbuf/netsim/dns"
)

// This example shows a router injecting spoofed DNS responses ahead
// of the legitimate ones. The client stack resolver accepts the first
// response, so dialing www.example.com reaches the spoofed address. A
// raw DNS exchange then shows both responses in arrival order.
func Example_censorDNS() {
	scenario := netsim.NewScenario(nil)
	defer scenario.Close()

	scenario.Attach(scenario.MustNewGoogleDNSStack())
	scenario.Attach(scenario.MustNewExampleComStack())

	poison := netsimdns.NewDatabase()
	poison.AddAddresses([]string{"www.example.com"}, []string{"10.0.0.1"})
	scenario.Router().AddFilter(censor.NewDNSPoisoner(poison))

	client := scenario.MustNewClientStack()
	scenario.Attach(client)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// 1. resolving through the stack picks the spoofed answer
	conn, err := client.DialContext(ctx, "udp", "www.example.com:7")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("dialed: %s\n", conn.RemoteAddr())
	conn.Close()

	// 2. a raw exchange sees the spoofed and the legitimate responses
	query := new(dns.Msg)
	query.SetQuestion("www.example.com.", dns.TypeA)
	rawQuery, err := query.Pack()
	if err != nil {
		log.Fatal(err)
	}
	server, err := client.DialContext(ctx, "udp", "8.8.8.8:53")
	if err != nil {
		log.Fatal(err)
	}
	defer server.Close()
	if _, err := server.Write(rawQuery); err != nil {
		log.Fatal(err)
	}

	buffer := make([]byte, 4096)
	server.SetReadDeadline(time.Now().Add(10 * time.Second))
	for range 2 {
		count, err := server.Read(buffer)
		if err != nil {
			log.Fatal(err)
		}
		response := new(dns.Msg)
		if err := response.Unpack(buffer[:count]); err != nil {
			log.Fatal(err)
		}
		for _, ans := range response.Answer {
			if a, ok := ans.(*dns.A); ok {
				fmt.Printf("answer: %s\n", a.A)
			}
		}
	}

	// Output:
	// dialed: 10.0.0.1:7
	// answer: 10.0.0.1
	// answer: 93.184.216.34
}
