// Package output provides formatting and output generation for validation
// results.
package output

import (
	"net/url"
	"strings"
	"time"

	"github.com/ccollicutt/validata/pkg/runner"
)

// Report is the complete output of a run.
type Report struct {
	Summary  Summary      `json:"summary"`
	Files    []FileReport `json:"files"`
	Metadata Metadata     `json:"metadata"`
}

// Summary provides aggregate statistics.
type Summary struct {
	FilesChecked int `json:"files_checked"`
	FilesFailed  int `json:"files_failed"`

	// LinesChecked is the number of lines validated across all files.
	LinesChecked int `json:"lines_checked"`

	// LineErrors is the number of failing lines across all files.
	LineErrors int `json:"line_errors"`

	// SizeAnomalies counts files whose size left the valid window.
	SizeAnomalies int `json:"size_anomalies"`
}

// FileReport is the outcome of one file.
type FileReport struct {
	Path       string                    `json:"path"`
	Passed     bool                      `json:"passed"`
	Size       int64                     `json:"size"`
	Lines      int                       `json:"lines"`
	Errors     int                       `json:"errors"`
	Failures   []Failure                 `json:"failures,omitempty"`
	Baseline   int64                     `json:"baseline"`
	Delta      int                       `json:"delta"`
	DeltaClass string                    `json:"delta_class"`
	Counts     map[string]int            `json:"counts,omitempty"`
	Groups     map[string]map[string]int `json:"groups,omitempty"`
	HistoryURL string                    `json:"history_url,omitempty"`

	// Error describes a read failure or a failed size check.
	Error string `json:"error,omitempty"`
}

// Failure is one failing line.
type Failure struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Metadata provides context about the run.
type Metadata struct {
	ConfigFile string        `json:"config_file"`
	Version    string        `json:"version"`
	AnalyzedAt time.Time     `json:"analyzed_at"`
	Duration   time.Duration `json:"duration"`
}

// NewReport creates a Report from a run. viewerURL, when set, is the base
// of the history viewer linked from each file.
func NewReport(result *runner.RunResult, configFile, viewerURL string) *Report {
	report := &Report{
		Files: make([]FileReport, 0, len(result.Files)),
		Metadata: Metadata{
			ConfigFile: configFile,
			Version:    result.Version,
			AnalyzedAt: result.EndTime,
			Duration:   result.EndTime.Sub(result.StartTime),
		},
	}

	for _, res := range result.Files {
		fr := FileReport{
			Path:       res.Path,
			Passed:     !res.Failed(),
			Baseline:   res.Baseline,
			Delta:      int(res.Delta),
			DeltaClass: res.Delta.Class(),
			HistoryURL: HistoryURL(viewerURL, res.Path),
		}
		switch {
		case res.Err != nil:
			fr.Error = res.Err.Error()
		case res.AnomalyErr != nil:
			fr.Error = res.AnomalyErr.Error()
		}

		if f := res.File; f != nil {
			fr.Size = f.Size
			fr.Lines = f.Lines
			fr.Errors = f.Errors
			fr.Counts = f.Counts
			fr.Groups = f.Groups
			for _, lf := range f.Failures {
				fr.Failures = append(fr.Failures, Failure{Line: lf.Line, Text: lf.Text, Error: lf.Err.Error()})
			}
		}

		report.Summary.FilesChecked++
		if !fr.Passed {
			report.Summary.FilesFailed++
		}
		if fr.Delta != 0 {
			report.Summary.SizeAnomalies++
		}
		report.Summary.LinesChecked += fr.Lines
		report.Summary.LineErrors += fr.Errors
		report.Files = append(report.Files, fr)
	}

	return report
}

// HistoryURL returns the history viewer link for filename, or "" without
// a viewer.
func HistoryURL(viewerURL, filename string) string {
	if viewerURL == "" {
		return ""
	}
	return strings.TrimRight(viewerURL, "/") + "/history?filename=" + url.QueryEscape(filename)
}

// HasFailures returns true if any file failed.
func (r *Report) HasFailures() bool {
	return r.Summary.FilesFailed > 0
}
