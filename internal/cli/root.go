// Package cli provides the command-line interface for Validata.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/validata/internal/cli/commands"
	"github.com/ccollicutt/validata/pkg/version"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	return execute(NewRootCommand(), os.Args[1:])
}

func execute(rootCmd *cobra.Command, args []string) int {
	commands.ExitCode = 0
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		// Print error to stderr (SilenceErrors prevents Cobra from doing this)
		_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return 2 // Configuration or runtime error
	}
	return commands.ExitCode
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	opts := &commands.CheckOptions{}

	rootCmd := &cobra.Command{
		Use:   "validata <config-file> <datafile|glob>...",
		Short: "Validate line-oriented data files against declarative rules",
		Long: `Validata checks every line of line-oriented data files against rules
declared in a YAML or TOML configuration, and watches each file's size for
anomalies against its recorded history.

` + commands.CheckLong,
		Version:       version.Version,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunCheck(cmd, args, opts)
		},
	}
	commands.AddCheckFlags(rootCmd.Flags(), opts)

	rootCmd.PersistentFlags().String(commands.FlagLogLevel, "", "Log level (debug|info|warn|error, default: VALIDATA_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().String(commands.FlagLogFormat, "", "Log format (text|json, default: VALIDATA_LOG_FORMAT or text)")

	// Add subcommands
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewDiagnoseCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
