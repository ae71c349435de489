package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/validata/pkg/config"
	"github.com/ccollicutt/validata/pkg/history"
	"github.com/ccollicutt/validata/pkg/rules"
	"github.com/ccollicutt/validata/pkg/source"
	"github.com/ccollicutt/validata/pkg/validator"
)

// sampleLines is how many lines of each data file diagnose validates.
const sampleLines = 10

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose    bool
	History    string
	ReportURL  string
	SearchDirs []string
}

// DiagnosticResult represents the result of a single diagnostic check
type DiagnosticResult struct {
	Check    string
	Status   string // "ok", "warning", "error"
	Message  string
	Details  []string
	Suggests []string
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <config-file> [datafile|glob]...",
		Short: "Diagnose common configuration issues",
		Long: `Diagnose common configuration issues.

This command checks your setup for common problems:
- Config file syntax, includes and external lists
- Rule compilation and directive values
- History file readability
- Data file existence, and the first lines of each against the rules
- Report endpoint settings

Example:
  validata diagnose config.yaml
  validata diagnose -v config.yaml 'data/*.tsv'  # verbose output`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")
	cmd.Flags().StringVar(&opts.History, "history", "", "History file (overrides __logfile and VALIDATA_HISTORY)")
	cmd.Flags().StringVar(&opts.ReportURL, "report-url", "", "Remote logging endpoint to check")
	cmd.Flags().StringSliceVar(&opts.SearchDirs, "search-dir", nil, "Extra directories searched for config files")

	return cmd
}

func runDiagnose(cmd *cobra.Command, args []string, opts *DiagnoseOptions) error {
	ctx := commandContext(cmd)
	configPath := args[0]

	settings, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if opts.ReportURL == "" {
		opts.ReportURL = settings.ReportURL
	}
	decoder, err := source.NewDecoder(settings.Encoding)
	if err != nil {
		return err
	}

	results := []DiagnosticResult{}
	out := cmd.OutOrStdout()

	// 1. Check config file existence
	result := checkConfigExists(configPath, slices.Concat(opts.SearchDirs, settings.SearchPath))
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(out, results, opts)
		return nil
	}

	// 2. Load config file
	doc, result := checkConfigLoadable(ctx, configPath, config.Options{
		SearchDirs: slices.Concat(opts.SearchDirs, settings.SearchPath),
		SystemDir:  settings.ConfigDir,
		Logger:     logger,
		Decoder:    decoder,
	})
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(out, results, opts)
		return nil
	}

	// 3. Compile rules
	table, ruleResults := checkRules(doc, opts)
	results = append(results, ruleResults...)

	// 4. Directives
	results = append(results, checkDirectives(doc)...)

	// 5. History file
	results = append(results, checkHistory(historyPath(opts.History, doc, settings)))

	// 6. Data files
	if len(args) > 1 {
		results = append(results, checkDataFiles(ctx, args[1:], table, doc, decoder, opts)...)
	}

	// 7. Report endpoint
	if opts.ReportURL != "" {
		results = append(results, checkReportURL(ctx, opts.ReportURL, opts)...)
	}

	printDiagnostics(out, results, opts)
	return nil
}

func checkConfigExists(path string, searchDirs []string) DiagnosticResult {
	result := DiagnosticResult{
		Check: "Config File",
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Remote config: %s", path)
		return result
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		// Relative names may still resolve through the search path.
		if len(searchDirs) > 0 || !strings.ContainsRune(path, os.PathSeparator) {
			result.Status = "warning"
			result.Message = fmt.Sprintf("Not found as given, will try the search path: %s", path)
			return result
		}
		result.Status = "error"
		result.Message = fmt.Sprintf("Config file not found: %s", path)
		result.Suggests = []string{
			"Check the file path is correct",
			"Set VALIDATA_PATH or --search-dir to directories holding your configs",
		}
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access config file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	}
	if info.IsDir() {
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		return result
	}
	if info.Size() == 0 {
		result.Status = "error"
		result.Message = "Config file is empty"
		result.Suggests = []string{
			`Define at least a rule named "all", e.g. all: '^.*$'`,
		}
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("Found: %s (%d bytes)", path, info.Size())
	return result
}

func checkConfigLoadable(ctx context.Context, path string, opts config.Options) (*config.Document, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config Syntax",
	}

	doc, err := config.Load(ctx, path, opts)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Failed to load config: %v", err)
		switch {
		case errors.Is(err, config.ErrCycle):
			result.Suggests = []string{"Include each document once; remove the __include that repeats or leads back to it"}
		case config.IsNotFound(err):
			result.Suggests = []string{"Check __include and external list names, they resolve next to the including file first"}
		case strings.Contains(err.Error(), "YAML") || strings.Contains(err.Error(), "TOML"):
			result.Suggests = []string{
				"Check syntax - ensure proper indentation (use spaces, not tabs)",
				"Quote patterns that contain ':' or start with '?' or '$'",
			}
		}
		return nil, result
	}

	result.Status = "ok"
	result.Message = "Config file loaded successfully"
	result.Details = []string{
		fmt.Sprintf("Path: %s", doc.Path),
		fmt.Sprintf("Rules: %d", len(doc.Entries(config.KindRule))),
		fmt.Sprintf("Constant sets: %d", len(doc.Entries(config.KindConstantSet))),
		fmt.Sprintf("External lists: %d", len(doc.Entries(config.KindExternalList))),
	}
	return doc, result
}

func checkRules(doc *config.Document, opts *DiagnoseOptions) (*rules.Table, []DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Rules",
	}

	table, err := rules.Compile(doc)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Failed to compile rules: %v", err)
		if errors.Is(err, config.ErrCycle) {
			result.Suggests = []string{"A rule refers back to itself through $references or capture groups"}
		}
		if _, ok := doc.Entry(rules.RootRule); !ok {
			result.Suggests = append(result.Suggests, `Add a rule named "all", it is applied to every line`)
		}
		return nil, []DiagnosticResult{result}
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("%d rule(s) compiled", len(table.Keys()))
	if opts.Verbose {
		result.Details = strings.Split(strings.TrimSuffix(table.String(), "\n"), "\n")
	}
	results := []DiagnosticResult{result}

	for _, e := range doc.Entries(config.KindExternalList) {
		r := DiagnosticResult{
			Check:   fmt.Sprintf("External List: %s", e.Key),
			Status:  "ok",
			Message: fmt.Sprintf("%d value(s) from %s", len(e.Values), e.Source),
		}
		if len(e.Values) == 0 {
			r.Status = "warning"
			r.Message = fmt.Sprintf("%s holds no values, every capture will fail", e.Source)
		}
		results = append(results, r)
	}

	return table, results
}

func checkDirectives(doc *config.Document) []DiagnosticResult {
	d := doc.Directives
	results := []DiagnosticResult{}

	size := DiagnosticResult{Check: "Size Thresholds"}
	if d.Size == nil {
		size.Status = "warning"
		size.Message = "No __size directive, size anomaly detection is disabled"
		size.Suggests = []string{"Example: __size: {valid: '10%', alert: '50%'}"}
	} else {
		size.Status = "ok"
		size.Message = fmt.Sprintf("valid %s, alert %s", d.Size.Valid, d.Size.Alert)
	}
	results = append(results, size)

	if d.Range != nil {
		results = append(results, DiagnosticResult{
			Check:   "Line Range",
			Status:  "ok",
			Message: fmt.Sprintf("Only lines %s are validated", d.Range),
		})
	}

	return results
}

func checkHistory(path string) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("History: %s", path),
	}

	if !fileExists(path) {
		result.Status = "warning"
		result.Message = "History file does not exist yet, it is created on the first run"
		return result
	}

	store, err := history.Load(path)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot read history: %v", err)
		if errors.Is(err, history.ErrCorruptLog) {
			result.Suggests = []string{
				"Size checks will fail until the file is repaired or moved away",
			}
		}
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("%d monitored file(s)", len(store.Files()))
	return result
}

func checkDataFiles(ctx context.Context, patterns []string, table *rules.Table, doc *config.Document, decoder *source.Decoder, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	files, err := source.ExpandGlobs(patterns)
	if err != nil {
		return append(results, DiagnosticResult{
			Check:   "Data Files",
			Status:  "error",
			Message: err.Error(),
		})
	}

	var v *validator.Validator
	if table != nil {
		v, _ = validator.New(table, validator.WithDecoder(decoder))
	}

	for _, file := range files {
		result := DiagnosticResult{
			Check: fmt.Sprintf("Data File: %s", file),
		}

		info, err := os.Stat(file)
		switch {
		case os.IsNotExist(err):
			result.Status = "error"
			result.Message = "File does not exist"
			result.Suggests = []string{"Check the path or quote glob patterns so the shell does not expand them"}
		case err != nil:
			result.Status = "error"
			result.Message = fmt.Sprintf("Cannot access file: %v", err)
		case info.IsDir():
			result.Status = "error"
			result.Message = "Path is a directory, not a file"
		case v == nil:
			result.Status = "ok"
			result.Message = fmt.Sprintf("File exists (%d bytes)", info.Size())
		default:
			result = sampleFile(ctx, file, info.Size(), v, doc.Directives.Range, opts)
		}
		results = append(results, result)
	}

	return results
}

// sampleFile validates the first lines of file.
func sampleFile(ctx context.Context, file string, size int64, v *validator.Validator, rng *source.Range, opts *DiagnoseOptions) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Data File: %s", file),
	}

	src, err := source.Open(file, rng)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot read file: %v", err)
		return result
	}
	defer src.Close()

	rctx := rules.NewContext()
	checked, passed := 0, 0
	var sampleFail string
	for checked < sampleLines {
		line, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Status = "error"
			result.Message = fmt.Sprintf("Cannot read file: %v", err)
			return result
		}
		checked++
		if err := v.CheckLine(line.Text, rctx); err != nil {
			if sampleFail == "" {
				sampleFail = fmt.Sprintf("line %d: %v", line.Num, err)
			}
			continue
		}
		passed++
	}

	switch {
	case checked == 0:
		result.Status = "warning"
		result.Message = fmt.Sprintf("No lines to validate (%d bytes)", size)
	case passed == 0:
		result.Status = "error"
		result.Message = fmt.Sprintf("Rules match none of the first %d lines", checked)
		result.Details = []string{truncate(sampleFail, 120)}
		result.Suggests = []string{`Check the "all" rule against the data file layout`}
	case passed < checked:
		result.Status = "warning"
		result.Message = fmt.Sprintf("Rules match %d/%d sample lines", passed, checked)
		result.Details = []string{truncate(sampleFail, 120)}
	default:
		result.Status = "ok"
		result.Message = fmt.Sprintf("Rules match %d/%d sample lines (%d bytes)", passed, checked, size)
		if opts.Verbose {
			for name, n := range rctx.Counts {
				result.Details = append(result.Details, fmt.Sprintf("count %s: %d", name, n))
			}
		}
	}
	return result
}

func checkReportURL(ctx context.Context, rawURL string, opts *DiagnoseOptions) []DiagnosticResult {
	result := DiagnosticResult{
		Check: "Report Endpoint",
	}

	u, err := url.Parse(rawURL)
	switch {
	case err != nil:
		result.Status = "error"
		result.Message = fmt.Sprintf("Invalid URL: %v", err)
	case u.Host == "":
		result.Status = "error"
		result.Message = "URL must have a host"
	case u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "nats" || u.Scheme == "tls":
		result.Status = "ok"
		result.Message = fmt.Sprintf("Scheme: %s", u.Scheme)
	default:
		result.Status = "error"
		result.Message = fmt.Sprintf("URL scheme must be http, https or nats, got %q", u.Scheme)
	}
	results := []DiagnosticResult{result}

	// Optionally test connectivity
	if opts.Verbose && result.Status == "ok" && (u.Scheme == "http" || u.Scheme == "https") {
		conn := checkReportConnectivity(ctx, rawURL)
		conn.Check = "Report Connectivity"
		results = append(results, conn)
	}

	return results
}

func checkReportConnectivity(ctx context.Context, rawURL string) DiagnosticResult {
	result := DiagnosticResult{}

	// Just do a HEAD request to check if the endpoint is reachable
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot create request: %v", err)
		return result
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot connect: %v", err)
		result.Suggests = []string{
			"Check if the report URL is correct",
			"Verify network connectivity",
		}
		return result
	}
	defer resp.Body.Close()

	// Any response (even 4xx/5xx) means the server is reachable
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Reachable (status %d)", resp.StatusCode)
	} else {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Reachable but returned status %d", resp.StatusCode)
		result.Suggests = []string{
			"The endpoint may only accept POST (will work during an actual report)",
		}
	}

	return result
}

func printDiagnostics(w io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	fmt.Fprintln(w, "=== Validata Configuration Diagnostics ===")
	fmt.Fprintln(w)

	okCount := 0
	warnCount := 0
	errCount := 0

	for _, r := range results {
		var icon string
		switch r.Status {
		case "ok":
			icon = "PASS"
			okCount++
		case "warning":
			icon = "WARN"
			warnCount++
		case "error":
			icon = "FAIL"
			errCount++
		}

		fmt.Fprintf(w, "[%s] %s\n", icon, r.Check)
		fmt.Fprintf(w, "    %s\n", r.Message)

		if opts.Verbose || r.Status != "ok" {
			for _, d := range r.Details {
				fmt.Fprintf(w, "      - %s\n", d)
			}
		}

		for _, s := range r.Suggests {
			fmt.Fprintf(w, "      Hint: %s\n", s)
		}

		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

	if errCount > 0 {
		fmt.Fprintln(w, "\nFix the errors above before validating data files.")
	} else if warnCount > 0 {
		fmt.Fprintln(w, "\nConfiguration is usable but has warnings.")
	} else {
		fmt.Fprintln(w, "\nConfiguration looks good!")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
