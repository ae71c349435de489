package anomaly_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/history"
)

func TestParseRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec     string
		baseline int64
		low      float64
		high     float64
	}{
		{"10", 100, 90, 110},
		{"+10", 100, 100, 110},
		{"-10", 100, 90, 100},
		{"10%", 100, 90, 110},
		{"+50%", 200, 200, 300},
		{"0", 100, 100, 100},
		{"10, 20", 100, 90, 120},
		{"-10%, +25%", 200, 180, 250},
		{"+10, 20", 100, 110, 120},
		{"10, -5", 100, 90, 95},
		{" 2.5% ", 1000, 975, 1025},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()

			r, err := anomaly.ParseRange(tt.spec, tt.baseline)
			if err != nil {
				t.Fatalf("ParseRange(%q) error = %v", tt.spec, err)
			}
			if math.Abs(r.Low-tt.low) > 1e-9 || math.Abs(r.High-tt.high) > 1e-9 {
				t.Errorf("ParseRange(%q, %d) = [%v, %v], want [%v, %v]", tt.spec, tt.baseline, r.Low, r.High, tt.low, tt.high)
			}
		})
	}
}

func TestParseSpec_Invalid(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{"", "abc", "10%%", "1,2,3", "+10, -20", "--5", "%10"} {
		if _, err := anomaly.ParseSpec(spec); err == nil {
			t.Errorf("ParseSpec(%q) error = nil, want error", spec)
		}
	}
}

func TestSpec_String(t *testing.T) {
	t.Parallel()

	s, err := anomaly.ParseSpec("  -10%, +25% ")
	if err != nil {
		t.Fatalf("ParseSpec() error = %v", err)
	}
	if got := s.String(); got != "-10%, +25%" {
		t.Errorf("String() = %q, want %q", got, "-10%, +25%")
	}
	if s.IsZero() {
		t.Error("IsZero() = true, want false")
	}
	if !(anomaly.Spec{}).IsZero() {
		t.Error("Spec{}.IsZero() = false, want true")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	mustSpec := func(s string) anomaly.Spec {
		if s == "" {
			return anomaly.Spec{}
		}
		spec, err := anomaly.ParseSpec(s)
		if err != nil {
			t.Fatalf("ParseSpec(%q) error = %v", s, err)
		}
		return spec
	}

	tests := []struct {
		name     string
		baseline int64
		size     int64
		valid    string
		alert    string
		want     anomaly.Delta
	}{
		{"exact match", 100, 100, "0", "", anomaly.DeltaValid},
		{"inside valid", 100, 105, "10", "", anomaly.DeltaValid},
		{"alert above", 100, 150, "0", "60%", anomaly.DeltaAlertAbove},
		{"alert below", 100, 60, "10", "50%", anomaly.DeltaAlertBelow},
		{"error above", 100, 200, "10", "50%", anomaly.DeltaErrorAbove},
		{"error below", 100, 10, "10", "50%", anomaly.DeltaErrorBelow},
		{"no alert band", 100, 111, "10", "", anomaly.DeltaErrorAbove},
		{"upper bound inclusive", 100, 110, "10", "", anomaly.DeltaValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := anomaly.Classify(tt.baseline, tt.size, mustSpec(tt.valid), mustSpec(tt.alert))
			if got != tt.want {
				t.Errorf("Classify(%d, %d) = %v, want %v", tt.baseline, tt.size, got, tt.want)
			}
		})
	}
}

func TestDelta_Class(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta   anomaly.Delta
		class   string
		isError bool
	}{
		{anomaly.DeltaValid, "valid", false},
		{anomaly.DeltaAlertAbove, "alert", false},
		{anomaly.DeltaAlertBelow, "alert", false},
		{anomaly.DeltaErrorAbove, "error", true},
		{anomaly.DeltaErrorBelow, "error", true},
	}
	for _, tt := range tests {
		if got := tt.delta.Class(); got != tt.class {
			t.Errorf("Delta(%d).Class() = %q, want %q", int(tt.delta), got, tt.class)
		}
		if got := tt.delta.IsError(); got != tt.isError {
			t.Errorf("Delta(%d).IsError() = %v, want %v", int(tt.delta), got, tt.isError)
		}
	}
}

func TestParseThresholds(t *testing.T) {
	t.Parallel()

	th, err := anomaly.ParseThresholds("", "")
	if err != nil {
		t.Fatalf("ParseThresholds() error = %v", err)
	}
	if got := th.Valid.String(); got != "0" {
		t.Errorf("Valid = %q, want 0", got)
	}
	if !th.Alert.IsZero() {
		t.Errorf("Alert = %q, want zero", th.Alert.String())
	}

	if _, err := anomaly.ParseThresholds("x", ""); err == nil {
		t.Error("ParseThresholds(x) error = nil, want error")
	}
	if _, err := anomaly.ParseThresholds("10", "y"); err == nil {
		t.Error("ParseThresholds(10, y) error = nil, want error")
	}
}

func newStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Load(filepath.Join(t.TempDir(), "history.yaml"))
	if err != nil {
		t.Fatalf("history.Load() error = %v", err)
	}
	return store
}

func mustThresholds(t *testing.T, valid, alert string) *anomaly.Thresholds {
	t.Helper()
	th, err := anomaly.ParseThresholds(valid, alert)
	if err != nil {
		t.Fatalf("ParseThresholds() error = %v", err)
	}
	return th
}

func mustCheck(t *testing.T, d *anomaly.Detector, file string, e history.Entry) history.Entry {
	t.Helper()
	got, err := d.Check(file, e)
	if err != nil {
		t.Fatalf("Check(%s, %s) error = %v", file, e.Version, err)
	}
	return got
}

func TestDetector_FirstRunSeedsBaseline(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	d := anomaly.NewDetector(store, mustThresholds(t, "0", ""))

	e := mustCheck(t, d, "f", history.Entry{Version: "1", Size: 100})
	if e.Delta != 0 || e.Last != 100 {
		t.Errorf("Check() Delta, Last = %d, %d, want 0, 100", e.Delta, e.Last)
	}

	baseline, ok := store.Baseline("f")
	if !ok || baseline != 100 {
		t.Errorf("Baseline() = %d, %v, want 100, true", baseline, ok)
	}
}

func TestDetector_AlertKeepsBaseline(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	d := anomaly.NewDetector(store, mustThresholds(t, "0", "60%"))

	mustCheck(t, d, "f", history.Entry{Version: "1", Size: 100})

	if e := mustCheck(t, d, "f", history.Entry{Version: "2", Size: 100}); e.Delta != int(anomaly.DeltaValid) {
		t.Errorf("second Check() Delta = %d, want %d", e.Delta, int(anomaly.DeltaValid))
	}

	e := mustCheck(t, d, "f", history.Entry{Version: "3", Size: 150})
	if e.Delta != int(anomaly.DeltaAlertAbove) || e.Last != 100 {
		t.Errorf("third Check() Delta, Last = %d, %d, want %d, 100", e.Delta, e.Last, int(anomaly.DeltaAlertAbove))
	}

	if baseline, _ := store.Baseline("f"); baseline != 100 {
		t.Errorf("Baseline() = %d, want 100", baseline)
	}
	if got := len(store.History("f")); got != 3 {
		t.Errorf("History() = %d entries, want 3", got)
	}
}

func TestDetector_NoThresholds(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	d := anomaly.NewDetector(store, nil)

	mustCheck(t, d, "f", history.Entry{Version: "1", Size: 100})
	e := mustCheck(t, d, "f", history.Entry{Version: "2", Size: 5000})
	if e.Delta != 0 || e.Last != 100 {
		t.Errorf("Check() Delta, Last = %d, %d, want 0, 100", e.Delta, e.Last)
	}

	if baseline, _ := store.Baseline("f"); baseline != 5000 {
		t.Errorf("Baseline() = %d, want 5000", baseline)
	}
}

func TestDetector_Unavailable(t *testing.T) {
	t.Parallel()

	d := anomaly.Unavailable(history.ErrCorruptLog)
	if _, err := d.Check("f", history.Entry{Size: 1}); !errors.Is(err, history.ErrCorruptLog) {
		t.Errorf("Check() error = %v, want ErrCorruptLog", err)
	}
}
