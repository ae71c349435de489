package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/config"
	"github.com/ccollicutt/validata/pkg/history"
	"github.com/ccollicutt/validata/pkg/logging"
	"github.com/ccollicutt/validata/pkg/rules"
	"github.com/ccollicutt/validata/pkg/source"
)

// Global flag names, registered on the root command.
const (
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
)

// setup loads the process settings and builds the logger. Log flags set on
// the command line win over the environment.
func setup(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, err
	}

	level := flagOr(cmd, FlagLogLevel, settings.LogLevel)
	format := flagOr(cmd, FlagLogFormat, settings.LogFormat)
	logger, err := logging.New(cmd.ErrOrStderr(), level, format)
	if err != nil {
		return nil, nil, err
	}
	return settings, logger, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// flagOr returns the value of the named flag when it was set explicitly,
// otherwise fallback.
func flagOr(cmd *cobra.Command, name, fallback string) string {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return f.Value.String()
	}
	return fallback
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// loadTable loads the configuration document at path and compiles its rules.
func loadTable(ctx context.Context, path string, settings *config.Settings, searchDirs []string, decoder *source.Decoder, logger *slog.Logger) (*config.Document, *rules.Table, error) {
	doc, err := config.Load(ctx, path, config.Options{
		SearchDirs: slices.Concat(searchDirs, settings.SearchPath),
		SystemDir:  settings.ConfigDir,
		Logger:     logger,
		Decoder:    decoder,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	table, err := rules.Compile(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling rules: %w", err)
	}
	logger.Debug("compiled rules", "config", doc.Path, "keys", len(table.Keys()))
	return doc, table, nil
}

// historyPath picks the history file: the flag, then the __logfile
// directive, then the environment default.
func historyPath(flag string, doc *config.Document, settings *config.Settings) string {
	if flag != "" {
		return flag
	}
	if doc != nil && doc.Directives.LogFile != "" {
		return doc.Directives.LogFile
	}
	return settings.History
}

// openDetector loads the history store at path. A store that cannot be read
// yields a detector that fails every size check instead of an error, so that
// lines are still validated.
func openDetector(path string, thresholds *anomaly.Thresholds, logger *slog.Logger) *anomaly.Detector {
	store, err := history.Load(path)
	if err != nil {
		logger.Warn("history unavailable", "path", path, "error", err)
		return anomaly.Unavailable(err)
	}
	logger.Debug("loaded history", "path", path, "files", len(store.Files()))
	return anomaly.NewDetector(store, thresholds)
}

// absPath returns path made absolute, as history keys are.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
