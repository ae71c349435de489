package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ccollicutt/validata/pkg/output"
	"github.com/ccollicutt/validata/pkg/report"
	"github.com/ccollicutt/validata/pkg/runner"
	"github.com/ccollicutt/validata/pkg/source"
	"github.com/ccollicutt/validata/pkg/validator"
	"github.com/ccollicutt/validata/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// CheckOptions holds command-line options for validating data files.
type CheckOptions struct {
	Output  string
	Verbose bool
	Quiet   bool

	History       string
	ReportURL     string
	ReportTimeout time.Duration
	ViewerURL     string

	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string

	Jobs       int
	MaxErrors  int
	RunVersion string
	Encoding   string
	SearchDirs []string
}

// CheckLong describes the check flow for the root command.
const CheckLong = `Validate data files line by line against the rules of a configuration
file, compare each file's size with its recorded history and report the
results.

The configuration is YAML, or TOML when the file name ends in .toml. The
rule named "all" is applied to every line of every data file.

Exit codes:
  0 - All files passed
  1 - At least one file failed
  2 - Configuration or runtime error`

// AddCheckFlags registers the check flags on fs.
func AddCheckFlags(fs *pflag.FlagSet, opts *CheckOptions) {
	fs.StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "Show failing line text, counters and groups")
	fs.BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no details")

	fs.StringVar(&opts.History, "history", "", "History file (overrides __logfile and VALIDATA_HISTORY)")
	fs.StringVar(&opts.ReportURL, "report-url", "", "Remote logging endpoint (http(s):// or nats://)")
	fs.DurationVar(&opts.ReportTimeout, "report-timeout", report.DefaultTimeout, "Timeout for each remote report")
	fs.StringVar(&opts.ViewerURL, "viewer-url", "", "History viewer base URL printed with each file")

	fs.StringVar(&opts.WebhookURL, "webhook-url", "", "POST the JSON run report to this URL")
	fs.StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for the webhook")
	fs.StringVar(&opts.WebhookTrigger, "webhook-trigger", string(webhook.TriggerOnFailure), "When to send the webhook (on_failure|always|never)")

	fs.IntVarP(&opts.Jobs, "jobs", "j", 1, "Number of files validated at once")
	fs.IntVar(&opts.MaxErrors, "max-errors", validator.DefaultMaxReported, "Failing lines shown per file")
	fs.StringVar(&opts.RunVersion, "run", "", "Run version recorded in history (default: UTC timestamp)")
	fs.StringVar(&opts.Encoding, "encoding", "", "Fallback encoding for lines that are not UTF-8")
	fs.StringSliceVar(&opts.SearchDirs, "search-dir", nil, "Extra directories searched for config files (can be repeated)")
}

// NewCheckCommand creates the check command. The root command runs the
// same flow when given a config file and data files directly.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check <config-file> <datafile|glob>...",
		Short: "Validate data files against a configuration",
		Long:  CheckLong,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunCheck(cmd, args, opts)
		},
	}
	AddCheckFlags(cmd.Flags(), opts)

	return cmd
}

// RunCheck validates args[1:] against the configuration in args[0].
func RunCheck(cmd *cobra.Command, args []string, opts *CheckOptions) error {
	ExitCode = 0
	configPath := args[0]
	ctx := commandContext(cmd)

	settings, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if !flagChanged(cmd, "report-url") {
		opts.ReportURL = settings.ReportURL
	}
	if !flagChanged(cmd, "report-timeout") {
		opts.ReportTimeout = settings.ReportTimeout
	}
	if !flagChanged(cmd, "viewer-url") {
		opts.ViewerURL = settings.ViewerURL
	}
	if !flagChanged(cmd, "webhook-url") {
		opts.WebhookURL = settings.WebhookURL
	}
	if !flagChanged(cmd, "webhook-token") {
		opts.WebhookToken = settings.WebhookToken
	}
	if !flagChanged(cmd, "jobs") {
		opts.Jobs = settings.Jobs
	}
	if !flagChanged(cmd, "max-errors") {
		opts.MaxErrors = settings.MaxReported
	}
	if !flagChanged(cmd, "encoding") {
		opts.Encoding = settings.Encoding
	}
	if opts.Jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1, got %d", opts.Jobs)
	}

	trigger, err := webhook.ParseTrigger(opts.WebhookTrigger)
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}

	decoder, err := source.NewDecoder(opts.Encoding)
	if err != nil {
		return err
	}

	doc, table, err := loadTable(ctx, configPath, settings, opts.SearchDirs, decoder, logger)
	if err != nil {
		return err
	}

	v, err := validator.New(table,
		validator.WithDecoder(decoder),
		validator.WithRange(doc.Directives.Range),
		validator.WithMaxReported(opts.MaxErrors),
	)
	if err != nil {
		return err
	}

	files, err := source.ExpandGlobs(args[1:])
	if err != nil {
		return fmt.Errorf("expanding data files: %w", err)
	}

	runnerOpts := []runner.Option{
		runner.WithDetector(openDetector(historyPath(opts.History, doc, settings), doc.Directives.Size, logger)),
		runner.WithRunVersion(opts.RunVersion),
		runner.WithJobs(opts.Jobs),
		runner.WithLogger(logger),
	}

	if opts.ReportURL != "" {
		rep, err := report.New(opts.ReportURL, report.Options{Timeout: opts.ReportTimeout})
		if err != nil {
			logger.Warn("reporting disabled", "url", opts.ReportURL, "error", err)
		} else {
			defer func() { _ = rep.Close() }()
			runnerOpts = append(runnerOpts, runner.WithReporter(rep))
		}
	}

	r := runner.New(v, runnerOpts...)
	logger.Debug("starting run", "version", r.Version(), "files", len(files), "jobs", opts.Jobs)

	result, err := r.Run(ctx, files)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	rpt := output.NewReport(result, doc.Path, opts.ViewerURL)
	if err := formatter.Format(ctx, rpt, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if opts.WebhookURL != "" && trigger.ShouldSend(rpt) {
		resp := webhook.NewClient().Send(ctx, rpt, webhook.SendOptions{
			URL:     opts.WebhookURL,
			Token:   opts.WebhookToken,
			Timeout: opts.ReportTimeout,
		})
		if !resp.Success() {
			logger.Warn("webhook failed", "url", opts.WebhookURL, "status", resp.StatusCode, "error", resp.Error)
		} else {
			logger.Debug("webhook sent", "event_id", resp.EventID, "duration", resp.Duration)
		}
	}

	if rpt.HasFailures() {
		ExitCode = 1
	}
	return nil
}
