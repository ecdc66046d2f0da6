// SPDX-License-Identifier: GPL-3.0-or-later

// Command pktsim runs packet-level UDP/IPv4 network simulations.
package main

import (
	"fmt"
	"os"

	"github.com/rbmk-project/pktbuf/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pktsim: %v\n", err)
		os.Exit(1)
	}
}
