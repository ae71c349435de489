package anomaly

import (
	"fmt"

	"github.com/ccollicutt/validata/pkg/history"
)

// Delta is the anomaly class of a size comparison.
type Delta int

const (
	DeltaErrorBelow Delta = -2
	DeltaAlertBelow Delta = -1
	DeltaValid      Delta = 0
	DeltaAlertAbove Delta = 1
	DeltaErrorAbove Delta = 2
)

// Class returns "valid", "alert" or "error".
func (d Delta) Class() string {
	switch d {
	case DeltaValid:
		return "valid"
	case DeltaAlertBelow, DeltaAlertAbove:
		return "alert"
	default:
		return "error"
	}
}

// IsError reports whether the size fell outside both windows.
func (d Delta) IsError() bool {
	return d == DeltaErrorBelow || d == DeltaErrorAbove
}

// Thresholds holds the valid and alert windows of the __size directive.
type Thresholds struct {
	Valid Spec
	Alert Spec
}

// ParseThresholds parses the valid and alert specifications. An empty valid
// specification means "0" (exact match); an empty alert specification
// disables the alert band.
func ParseThresholds(valid, alert string) (*Thresholds, error) {
	if valid == "" {
		valid = "0"
	}
	v, err := ParseSpec(valid)
	if err != nil {
		return nil, fmt.Errorf("valid: %w", err)
	}
	t := &Thresholds{Valid: v}
	if alert != "" {
		a, err := ParseSpec(alert)
		if err != nil {
			return nil, fmt.Errorf("alert: %w", err)
		}
		t.Alert = a
	}
	return t, nil
}

// Classify compares size against baseline. Sizes inside the valid window
// are DeltaValid; sizes inside the alert window are ±1 and anything else is
// ±2, the sign telling on which side of the valid window the size fell.
func Classify(baseline, size int64, valid, alert Spec) Delta {
	vr := valid.Bounds(baseline)
	if vr.Contains(size) {
		return DeltaValid
	}

	side := Delta(1)
	if float64(size) < vr.Low {
		side = -1
	}
	if !alert.IsZero() && alert.Bounds(baseline).Contains(size) {
		return side * DeltaAlertAbove
	}
	return side * DeltaErrorAbove
}

// Store is the part of the history store the detector needs.
type Store interface {
	Baseline(filename string) (int64, bool)
	Record(filename string, e history.Entry) error
}

// Detector classifies each run against the stored baseline and records it.
type Detector struct {
	store      Store
	thresholds *Thresholds
	err        error
}

// NewDetector creates a detector. With nil thresholds every run is valid and
// the baseline simply follows the file.
func NewDetector(store Store, thresholds *Thresholds) *Detector {
	return &Detector{store: store, thresholds: thresholds}
}

// Unavailable returns a detector whose checks all fail with err. It is used
// when the history store could not be loaded, so that line validation can
// still go ahead.
func Unavailable(err error) *Detector {
	return &Detector{err: err}
}

// Check fills in the baseline and delta of e, records it for filename and
// returns the recorded entry. The first run of a file seeds the baseline.
func (d *Detector) Check(filename string, e history.Entry) (history.Entry, error) {
	if d.err != nil {
		return e, fmt.Errorf("size anomaly check: %w", d.err)
	}

	baseline, ok := d.store.Baseline(filename)
	if !ok {
		baseline = e.Size
	}
	e.Last = baseline
	e.Delta = int(DeltaValid)
	if ok && d.thresholds != nil {
		e.Delta = int(Classify(baseline, e.Size, d.thresholds.Valid, d.thresholds.Alert))
	}

	if err := d.store.Record(filename, e); err != nil {
		return e, fmt.Errorf("recording history: %w", err)
	}
	return e, nil
}
