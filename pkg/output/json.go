package output

import (
	"context"
	"encoding/json"
	"io"
)

// JSONFormatter writes reports as indented JSON documents.
type JSONFormatter struct {
	opts FormatOptions
}

// NewJSONFormatter creates a JSON formatter.
func NewJSONFormatter(opts FormatOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

func (f *JSONFormatter) Name() string {
	return "json"
}

// quietReport is the summary with the paths of the failed files.
type quietReport struct {
	Summary
	FailedFiles []string `json:"failed_files,omitempty"`
}

// Format writes the full report, or only the summary and failed paths in
// quiet mode.
func (f *JSONFormatter) Format(_ context.Context, report *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if !f.opts.Quiet {
		return enc.Encode(report)
	}

	q := quietReport{Summary: report.Summary}
	for _, fr := range report.Files {
		if !fr.Passed {
			q.FailedFiles = append(q.FailedFiles, fr.Path)
		}
	}
	return enc.Encode(q)
}
