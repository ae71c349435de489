// Package runner validates a batch of files, classifies their sizes,
// records their history and reports each result.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/history"
	"github.com/ccollicutt/validata/pkg/logging"
	"github.com/ccollicutt/validata/pkg/report"
	"github.com/ccollicutt/validata/pkg/validator"
)

// VersionLayout formats the default run version.
const VersionLayout = "20060102150405"

// Runner orchestrates one validation run.
type Runner struct {
	validator *validator.Validator
	detector  *anomaly.Detector
	reporter  report.Reporter
	version   string
	jobs      int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithDetector enables size anomaly classification and history recording.
func WithDetector(d *anomaly.Detector) Option {
	return func(r *Runner) {
		r.detector = d
	}
}

// WithReporter sends every file result to rep.
func WithReporter(rep report.Reporter) Option {
	return func(r *Runner) {
		r.reporter = rep
	}
}

// WithRunVersion sets the run identifier recorded in history.
func WithRunVersion(v string) Option {
	return func(r *Runner) {
		r.version = v
	}
}

// WithJobs sets how many files are validated at once.
func WithJobs(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.jobs = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner around v.
func New(v *validator.Validator, opts ...Option) *Runner {
	r := &Runner{
		validator: v,
		jobs:      1,
		logger:    logging.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.version == "" {
		r.version = r.now().UTC().Format(VersionLayout)
	}
	return r
}

// Version returns the run identifier.
func (r *Runner) Version() string {
	return r.version
}

// Result is the outcome of one file.
type Result struct {
	// Path is the absolute path of the file.
	Path string

	// File is nil when the file could not be read.
	File *validator.FileResult

	Version string

	// Baseline is the size the file was compared against.
	Baseline int64

	Delta anomaly.Delta

	// AnomalyErr is set when the size check or history update failed.
	AnomalyErr error

	// Err is set when the file could not be read.
	Err error
}

// Failed reports whether the file failed: a failing line, a size outside
// the alert window, a failed size check or a read error.
func (r *Result) Failed() bool {
	if r.Err != nil || r.AnomalyErr != nil {
		return true
	}
	if r.File != nil && r.File.Errors > 0 {
		return true
	}
	return r.Delta.IsError()
}

// RunResult is the outcome of a run.
type RunResult struct {
	Version   string
	Files     []*Result
	StartTime time.Time
	EndTime   time.Time
}

// Failed returns the number of failed files.
func (r *RunResult) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Failed() {
			n++
		}
	}
	return n
}

// Passed reports whether every file passed.
func (r *RunResult) Passed() bool {
	return r.Failed() == 0
}

// Run validates files and returns their results in argument order. Per-file
// problems are attached to the file's Result; only cancellation aborts the
// run.
func (r *Runner) Run(ctx context.Context, files []string) (*RunResult, error) {
	result := &RunResult{
		Version:   r.version,
		Files:     make([]*Result, len(files)),
		StartTime: r.now(),
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	sem := semaphore.NewWeighted(int64(r.jobs))
	for i, path := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			res, err := r.runFile(ctx, path)
			if err != nil {
				fail(err)
				return
			}
			result.Files[i] = res
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	result.EndTime = r.now()
	return result, nil
}

func (r *Runner) runFile(ctx context.Context, path string) (*Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	res := &Result{Path: abs, Version: r.version}
	logger := r.logger.With("file", abs)

	fr, err := r.validator.CheckFile(ctx, abs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		logger.Error("cannot validate file", "error", err)
		res.Err = err
		return res, nil
	}
	res.File = fr
	res.Baseline = fr.Size
	logger.Debug("validated file", "lines", fr.Lines, "errors", fr.Errors, "size", fr.Size)

	if r.detector != nil {
		entry, err := r.detector.Check(abs, history.Entry{
			Version: r.version,
			Size:    fr.Size,
			Error:   fr.Errors,
			Count:   fr.Counts,
			Group:   fr.Groups,
		})
		if err != nil {
			logger.Error("size anomaly check failed", "error", err)
			res.AnomalyErr = err
		} else {
			res.Baseline = entry.Last
			res.Delta = anomaly.Delta(entry.Delta)
			if res.Delta != anomaly.DeltaValid {
				logger.Warn("file size anomaly", "size", fr.Size, "baseline", entry.Last, "delta", res.Delta.Class())
			}
		}
	}

	if r.reporter != nil {
		rec := report.Record{
			Filename: abs,
			Version:  r.version,
			Size:     fr.Size,
			Delta:    int(res.Delta),
			Error:    fr.Errors,
			Last:     res.Baseline,
			Count:    fr.Counts,
			Group:    fr.Groups,
		}
		if err := r.reporter.Report(ctx, rec); err != nil {
			logger.Warn("cannot report result", "error", err)
		}
	}

	return res, nil
}
