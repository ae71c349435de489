package output

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
)

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	_, err := fmt.Fprintf(w, "Validata: %d files checked, %d failed, %d invalid lines\n",
		report.Summary.FilesChecked,
		report.Summary.FilesFailed,
		report.Summary.LineErrors)
	return err
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	fmt.Fprintln(w, "=== Validata Report ===")
	fmt.Fprintln(w)

	for i := range report.Files {
		f.formatFile(&report.Files[i], w)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d files checked, %d failed, %d invalid lines, %d size anomalies\n",
		report.Summary.FilesChecked,
		report.Summary.FilesFailed,
		report.Summary.LineErrors,
		report.Summary.SizeAnomalies)

	if f.opts.Verbose {
		fmt.Fprintf(w, "Run: %s\n", report.Metadata.Version)
		fmt.Fprintf(w, "Lines checked: %d\n", report.Summary.LinesChecked)
		_, err := fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(1e6))
		return err
	}
	return nil
}

func (f *TextFormatter) formatFile(fr *FileReport, w io.Writer) {
	status := "PASS"
	if !fr.Passed {
		status = "FAIL"
	}
	fmt.Fprintf(w, "[%s] %s\n", status, fr.Path)

	if fr.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", fr.Error)
	}
	fmt.Fprintf(w, "  lines: %d, invalid: %d\n", fr.Lines, fr.Errors)
	fmt.Fprintf(w, "  size: %d bytes, baseline %d (%s)\n", fr.Size, fr.Baseline, fr.DeltaClass)

	for _, failure := range fr.Failures {
		fmt.Fprintf(w, "  - line %d: %s\n", failure.Line, failure.Error)
		if f.opts.Verbose {
			fmt.Fprintf(w, "    %q\n", failure.Text)
		}
	}
	if shown := len(fr.Failures); fr.Errors > shown && shown > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", fr.Errors-shown)
	}

	if f.opts.Verbose {
		for _, name := range slices.Sorted(maps.Keys(fr.Counts)) {
			fmt.Fprintf(w, "  count %s: %d\n", name, fr.Counts[name])
		}
		for _, name := range slices.Sorted(maps.Keys(fr.Groups)) {
			bucket := fr.Groups[name]
			for _, value := range slices.Sorted(maps.Keys(bucket)) {
				fmt.Fprintf(w, "  group %s[%s]: %d\n", name, value, bucket[value])
			}
		}
	}

	if fr.HistoryURL != "" {
		fmt.Fprintf(w, "  history: %s\n", fr.HistoryURL)
	}
	fmt.Fprintln(w)
}
