package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/config"
	"github.com/ccollicutt/validata/pkg/history"
	"github.com/ccollicutt/validata/pkg/report"
	"github.com/ccollicutt/validata/pkg/rules"
	"github.com/ccollicutt/validata/pkg/runner"
	"github.com/ccollicutt/validata/pkg/validator"
)

type fakeReporter struct {
	mu      sync.Mutex
	records []report.Record
	err     error
}

func (f *fakeReporter) Report(_ context.Context, r report.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return f.err
}

func (f *fakeReporter) Close() error { return nil }

func newValidator(t *testing.T) *validator.Validator {
	t.Helper()
	doc, err := config.Parse(map[string]any{
		"all": `^(?P<n>\d+)$`,
		"n":   map[string]any{"count": "rows"},
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	table, err := rules.Compile(doc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	v, err := validator.New(table)
	if err != nil {
		t.Fatalf("validator.New() error = %v", err)
	}
	return v
}

func writeData(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write data file: %v", err)
	}
	return path
}

func TestRun_ResultsInArgumentOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		files = append(files, writeData(t, dir, name+".txt", "1\n2\n"))
	}
	files = append(files, writeData(t, dir, "bad.txt", "1\nx\n"))

	rep := &fakeReporter{}
	r := runner.New(newValidator(t), runner.WithJobs(3), runner.WithReporter(rep), runner.WithRunVersion("run-1"))
	result, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Files) != len(files) {
		t.Fatalf("Files = %d, want %d", len(result.Files), len(files))
	}
	for i, f := range result.Files {
		if f.Path != files[i] {
			t.Errorf("Files[%d].Path = %q, want %q", i, f.Path, files[i])
		}
		if f.Version != "run-1" {
			t.Errorf("Files[%d].Version = %q, want run-1", i, f.Version)
		}
	}
	if result.Failed() != 1 || result.Passed() {
		t.Errorf("Failed() = %d, Passed() = %v, want 1, false", result.Failed(), result.Passed())
	}
	if bad := result.Files[5]; !bad.Failed() || bad.File.Errors != 1 {
		t.Errorf("bad.txt Failed() = %v, Errors = %d, want true, 1", bad.Failed(), bad.File.Errors)
	}
	if len(rep.records) != len(files) {
		t.Errorf("reported %d records, want %d", len(rep.records), len(files))
	}
	if want := map[string]int{"rows": 2}; !reflect.DeepEqual(result.Files[0].File.Counts, want) {
		t.Errorf("Counts = %v, want %v", result.Files[0].File.Counts, want)
	}
	if result.Version != "run-1" {
		t.Errorf("Version = %q, want run-1", result.Version)
	}
}

func TestRun_DefaultVersionIsTimestamp(t *testing.T) {
	t.Parallel()

	r := runner.New(newValidator(t))
	if _, err := time.Parse(runner.VersionLayout, r.Version()); err != nil {
		t.Errorf("Version() = %q is not a timestamp: %v", r.Version(), err)
	}
}

func TestRun_SizeAnomaly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := history.Load(filepath.Join(dir, "history.yaml"))
	if err != nil {
		t.Fatalf("history.Load() error = %v", err)
	}
	th, err := anomaly.ParseThresholds("0", "60%")
	if err != nil {
		t.Fatalf("ParseThresholds() error = %v", err)
	}
	det := anomaly.NewDetector(store, th)

	path := writeData(t, dir, "data.txt", "1234567890\n")
	run := func(version string) *runner.Result {
		t.Helper()
		rep := &fakeReporter{}
		r := runner.New(newValidator(t), runner.WithDetector(det), runner.WithReporter(rep), runner.WithRunVersion(version))
		result, err := r.Run(context.Background(), []string{path})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(rep.records) != 1 {
			t.Fatalf("reported %d records, want 1", len(rep.records))
		}
		f := result.Files[0]
		if rep.records[0].Delta != int(f.Delta) || rep.records[0].Last != f.Baseline {
			t.Errorf("record = %+v, want delta %d and last %d", rep.records[0], f.Delta, f.Baseline)
		}
		return f
	}

	first := run("1")
	if first.Delta != anomaly.DeltaValid || first.Failed() {
		t.Errorf("first run Delta = %v, Failed() = %v, want valid, false", first.Delta, first.Failed())
	}

	// 11 -> 17 bytes: inside 60%, outside exact.
	if err := os.WriteFile(path, []byte("1234567890123\n12\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := run("2")
	if second.Delta != anomaly.DeltaAlertAbove {
		t.Errorf("second run Delta = %v, want %v", second.Delta, anomaly.DeltaAlertAbove)
	}
	if second.Baseline != 11 {
		t.Errorf("second run Baseline = %d, want 11", second.Baseline)
	}
	if second.Failed() {
		t.Error("second run Failed() = true, alerts do not fail a file")
	}

	// Far outside the alert window.
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	third := run("3")
	if third.Delta != anomaly.DeltaErrorBelow || !third.Failed() {
		t.Errorf("third run Delta = %v, Failed() = %v, want %v, true", third.Delta, third.Failed(), anomaly.DeltaErrorBelow)
	}

	if got := len(store.History(path)); got != 3 {
		t.Errorf("History() = %d entries, want 3", got)
	}
}

func TestRun_UnavailableHistory(t *testing.T) {
	t.Parallel()

	path := writeData(t, t.TempDir(), "data.txt", "1\n")

	r := runner.New(newValidator(t), runner.WithDetector(anomaly.Unavailable(history.ErrCorruptLog)))
	result, err := r.Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	f := result.Files[0]
	if !errors.Is(f.AnomalyErr, history.ErrCorruptLog) {
		t.Errorf("AnomalyErr = %v, want ErrCorruptLog", f.AnomalyErr)
	}
	if f.File.Errors != 0 {
		t.Errorf("Errors = %d, want 0: lines are still validated", f.File.Errors)
	}
	if !f.Failed() {
		t.Error("Failed() = false, want true")
	}
}

func TestRun_ReporterErrorsIgnored(t *testing.T) {
	t.Parallel()

	path := writeData(t, t.TempDir(), "data.txt", "1\n")
	rep := &fakeReporter{err: errors.New("endpoint down")}

	result, err := runner.New(newValidator(t), runner.WithReporter(rep)).Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Passed() {
		t.Error("Passed() = false, want true")
	}
	if len(rep.records) != 1 {
		t.Errorf("reported %d records, want 1", len(rep.records))
	}
}

func TestRun_MissingFile(t *testing.T) {
	t.Parallel()

	rep := &fakeReporter{}
	result, err := runner.New(newValidator(t), runner.WithReporter(rep)).Run(context.Background(), []string{"/nonexistent/data.txt"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	f := result.Files[0]
	if f.Err == nil || f.File != nil {
		t.Errorf("Err = %v, File = %v, want read error and no file result", f.Err, f.File)
	}
	if !f.Failed() {
		t.Error("Failed() = false, want true")
	}
	if len(rep.records) != 0 {
		t.Errorf("reported %d records, want 0", len(rep.records))
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	path := writeData(t, t.TempDir(), "data.txt", "1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := runner.New(newValidator(t)).Run(ctx, []string{path}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_JobsBoundConcurrency(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files = append(files, writeData(t, dir, name+".txt", "1\n"))
	}

	rep := &gateReporter{release: make(chan struct{})}
	r := runner.New(newValidator(t), runner.WithJobs(2), runner.WithReporter(rep))
	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), files)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	close(rep.release)
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", rep.peak)
	}
}

// gateReporter blocks every report until release is closed and records how
// many reports were in flight at once.
type gateReporter struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	release  chan struct{}
}

func (g *gateReporter) Report(ctx context.Context, _ report.Record) error {
	g.mu.Lock()
	g.inFlight++
	g.peak = max(g.peak, g.inFlight)
	g.mu.Unlock()

	select {
	case <-g.release:
	case <-ctx.Done():
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return nil
}

func (g *gateReporter) Close() error { return nil }
