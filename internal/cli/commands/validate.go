package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/validata/pkg/config"
	"github.com/ccollicutt/validata/pkg/source"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var searchDirs []string

	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a Validata configuration file without reading any data file.

Checks:
  - YAML or TOML syntax
  - Includes and external lists resolve
  - Directive values (__range, __size, __requires)
  - Pattern validity and rule references
  - A rule named "all" exists and no reference cycles`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], searchDirs)
		},
	}
	cmd.Flags().StringSliceVar(&searchDirs, "search-dir", nil, "Extra directories searched for config files (can be repeated)")

	return cmd
}

func runValidate(cmd *cobra.Command, configPath string, searchDirs []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	settings, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	decoder, err := source.NewDecoder(settings.Encoding)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Validating %s...\n", configPath)

	doc, table, err := loadTable(ctx, configPath, settings, searchDirs, decoder, logger)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration valid!\n")
	fmt.Fprintf(out, "  Rules:         %d\n", len(doc.Entries(config.KindRule)))
	fmt.Fprintf(out, "  Constant sets: %d\n", len(doc.Entries(config.KindConstantSet, config.KindExternalList)))

	d := doc.Directives
	if d.LogFile != "" {
		fmt.Fprintf(out, "  History:       %s\n", d.LogFile)
	}
	if d.Range != nil {
		fmt.Fprintf(out, "  Range:         %s\n", d.Range)
	}
	if d.Size != nil {
		fmt.Fprintf(out, "  Size:          valid %s, alert %s\n", d.Size.Valid, d.Size.Alert)
	}
	if d.Requires != nil {
		fmt.Fprintf(out, "  Requires:      %s\n", d.Requires)
	}

	fmt.Fprintf(out, "\nRules:\n%s", table)
	return nil
}
