// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/rbmk-project/pktbuf/internal/simconfig"
	"github.com/spf13/cobra"
)

func newValidateCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a simulation config file",
		Long: `Validate a simulation config file without running the simulation.

Examples:
  pktsim validate -c pktsim.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := simconfig.Load(*configFile)
			if err != nil {
				return fmt.Errorf("INVALID: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VALID: %d host(s), %d censor(s), %d flow(s)\n",
				len(config.Hosts), len(config.Router.Censors), len(config.Traffic))
			return nil
		},
	}
}
