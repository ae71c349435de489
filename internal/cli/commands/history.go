package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/history"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var historyFile string

	cmd := &cobra.Command{
		Use:   "history [datafile]",
		Short: "Show the recorded runs of a data file",
		Long: `Show the size history recorded for a data file, oldest run first.

Without a data file, lists every file the history log holds together with
its current baseline.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, historyFile)
		},
	}
	cmd.Flags().StringVar(&historyFile, "history", "", "History file (default: VALIDATA_HISTORY)")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string, historyFile string) error {
	settings, _, err := setup(cmd)
	if err != nil {
		return err
	}

	store, err := history.Load(historyPath(historyFile, nil, settings))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)

	if len(args) == 0 {
		fmt.Fprintln(tw, "FILE\tBASELINE\tRUNS")
		for _, name := range store.Files() {
			last, _ := store.Baseline(name)
			fmt.Fprintf(tw, "%s\t%d\t%d\n", name, last, len(store.History(name)))
		}
		return tw.Flush()
	}

	filename := absPath(args[0])
	entries := store.History(filename)
	if len(entries) == 0 {
		return fmt.Errorf("no history recorded for %s in %s", filename, store.Path())
	}

	fmt.Fprintln(tw, "VERSION\tSIZE\tLAST\tDELTA\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\n", e.Version, e.Size, e.Last, anomaly.Delta(e.Delta).Class(), e.Error)
	}
	return tw.Flush()
}
