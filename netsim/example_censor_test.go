// SPDX-License-Identifier: GPL-3.0-or-later

package netsim_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"os"
	"time"

	"github.com/rbmk-project/pktbuf/netsim"
	"github.com/rbmk-project/pktbuf/netsim/censor"
)

// This example shows how to use [netsim] to simulate a censor
// redirecting traffic to a blockpage server using DNAT.
func Example_censorDNAT() {
	scenario := netsim.NewScenario(nil)
	defer scenario.Close()
	scenario.Attach(scenario.MustNewExampleComStack())
	scenario.Attach(scenario.MustNewBlockpageStack())
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	// Redirect the client traffic for the echo server to the blockpage.
	scenario.Router().AddFilter(censor.NewDNatter(
		netip.MustParseAddr("193.206.158.22"),
		netip.MustParseAddrPort("93.184.216.34:7"),
		netip.MustParseAddrPort("10.10.34.35:7"),
	))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	conn, err := clientStack.DialContext(ctx, "udp", "93.184.216.34:7")
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	// The reply seems to come from the echo server.
	if _, err := conn.Write([]byte("Hello, world!\n")); err != nil {
		log.Fatal(err)
	}
	buffer := make([]byte, 1024)
	count, err := conn.Read(buffer)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s", string(buffer[:count]))

	// Output:
	// Access to this service has been blocked by network policy.
}

// This example shows how to use [netsim] to simulate a censor
// blackholing a flow after seeing a forbidden pattern.
func Example_censorBlackhole() {
	scenario := netsim.NewScenario(nil)
	defer scenario.Close()
	scenario.Attach(scenario.MustNewExampleComStack())
	clientStack := scenario.MustNewClientStack()
	scenario.Attach(clientStack)

	scenario.Router().AddFilter(censor.NewBlackholer(
		time.Hour,
		netip.MustParseAddrPort("93.184.216.34:7"),
		[]byte("forbidden"),
	))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	conn, err := clientStack.DialContext(ctx, "udp", "93.184.216.34:7")
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	// roundTrip sends a message and waits a short time for the echo.
	roundTrip := func(message string) {
		conn.SetDeadline(time.Now().Add(250 * time.Millisecond))
		if _, err := conn.Write([]byte(message)); err != nil {
			log.Fatal(err)
		}
		buffer := make([]byte, 1024)
		count, err := conn.Read(buffer)
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			fmt.Printf("%s: timeout\n", message)
		case err != nil:
			log.Fatal(err)
		default:
			fmt.Printf("%s: %s\n", message, string(buffer[:count]))
		}
	}

	// Once triggered, the censor keeps blocking the flow.
	roundTrip("hello")
	roundTrip("forbidden")
	roundTrip("hello again")

	// Output:
	// hello: hello
	// forbidden: timeout
	// hello again: timeout
}
