package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/validata/internal/server"
	"github.com/ccollicutt/validata/pkg/history"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		addr        string
		historyFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the history viewer and result collector",
		Long: `Serve the history log over HTTP.

Endpoints:
  POST /api                 record a result posted by a validata reporter
  GET  /history?filename=   runs of a file as a tab separated table
  GET  /tsv?filename=       date/size series of a file for charting
  GET  /healthz             liveness check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			store, err := history.Load(historyPath(historyFile, nil, settings))
			if err != nil {
				return fmt.Errorf("loading history: %w", err)
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(store, logger).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", server.DefaultAddr, "Listen address")
	cmd.Flags().StringVar(&historyFile, "history", "", "History file (default: VALIDATA_HISTORY)")

	return cmd
}
