// SPDX-License-Identifier: GPL-3.0-or-later

// Package cli implements the pktsim command line using cobra.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand returns the pktsim root command.
func NewRootCommand() *cobra.Command {
	var configFile string
	rootCmd := &cobra.Command{
		Use:   "pktsim",
		Short: "pktsim - packet-level UDP/IPv4 network simulator",
		Long: `pktsim simulates a star network of UDP/IPv4 hosts connected to a central
router. Hosts may sit behind links modeling data rate, propagation delay and
losses, the router may fragment packets and apply censorship filters, and
packets crossing a link may be captured into pcap files.

The simulation is described by a YAML file whose settings can be overridden
using PKTSIM_ environment variables (e.g., PKTSIM_ROUTER_MTU=576).`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "pktsim.yaml",
		"simulation config file path")
	rootCmd.AddCommand(newRunCommand(&configFile))
	rootCmd.AddCommand(newValidateCommand(&configFile))
	return rootCmd
}

// Execute runs the root command with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}
