// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/rbmk-project/pktbuf/internal/simconfig"
	"github.com/spf13/cobra"
)

func newRunCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and report the flows statistics",
		Long: `Run the simulation described by the config file, send the configured
echo flows and print, for each flow, the sent, received and lost requests
and the average round trip time.

Examples:
  pktsim run -c pktsim.yaml
  PKTSIM_ROUTER_MTU=576 pktsim run -c pktsim.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			config, err := simconfig.Load(*configFile)
			if err != nil {
				return err
			}
			return run(ctx, config, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// run runs the simulation described by config writing the report to stdout
// and, when no log file is configured, the logs to stderr.
func run(ctx context.Context, config *simconfig.Config, stdout, stderr io.Writer) error {
	logger, logCloser, err := newLogger(&config.Log, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	t0 := time.Now()
	logger.Info("simulationStart", slog.Int("hosts", len(config.Hosts)),
		slog.Int("flows", len(config.Traffic)))
	sim, err := buildSimulation(config, logger)
	if err != nil {
		return err
	}

	results, err := runTraffic(ctx, sim, config.Traffic, logger)
	err = errors.Join(err, sim.Close())
	logger.Info("simulationDone", slog.Any("err", err), slog.Time("t0", t0),
		slog.Time("t", time.Now()))
	if err != nil {
		return err
	}
	printReport(stdout, results)
	return nil
}
