// Package anomaly classifies file sizes against a historical baseline.
package anomaly

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// specPattern is [sign]digits[%][, [sign]digits[%]].
var specPattern = regexp.MustCompile(`^\s*([+-]?)(\d+(?:\.\d+)?)(%?)\s*(?:,\s*([+-]?)(\d+(?:\.\d+)?)(%?)\s*)?$`)

type bound struct {
	sign    byte // '+', '-' or 0
	value   float64
	percent bool
}

// offset returns the magnitude of the bound for the given baseline.
func (b bound) offset(baseline int64) float64 {
	if b.percent {
		return float64(baseline) * b.value / 100
	}
	return b.value
}

// Spec is a parsed size-threshold specification. The zero Spec accepts only
// the baseline itself.
type Spec struct {
	raw   string
	lower bound
	upper bound
	pair  bool
}

// ParseSpec parses a threshold specification such as "10", "5%", "+20" or
// "-10%, +25%".
func ParseSpec(s string) (Spec, error) {
	m := specPattern.FindStringSubmatch(s)
	if m == nil {
		return Spec{}, fmt.Errorf("invalid size range %q (want [sign]digits[%%][, [sign]digits[%%]])", s)
	}

	lower, err := parseBound(m[1], m[2], m[3])
	if err != nil {
		return Spec{}, err
	}
	spec := Spec{raw: strings.TrimSpace(s), lower: lower}

	if m[5] != "" {
		upper, err := parseBound(m[4], m[5], m[6])
		if err != nil {
			return Spec{}, err
		}
		if lower.sign == '+' && upper.sign == '-' {
			return Spec{}, fmt.Errorf("invalid size range %q: lower bound above upper bound", s)
		}
		spec.upper = upper
		spec.pair = true
	}
	return spec, nil
}

func parseBound(sign, digits, percent string) (bound, error) {
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return bound{}, fmt.Errorf("invalid size offset %q: %w", digits, err)
	}
	b := bound{value: v, percent: percent == "%"}
	if sign != "" {
		b.sign = sign[0]
	}
	return b, nil
}

// IsZero reports whether the spec was never set.
func (s Spec) IsZero() bool {
	return s.raw == ""
}

// String returns the specification as written.
func (s Spec) String() string {
	return s.raw
}

// Range is an inclusive window of accepted sizes.
type Range struct {
	Low  float64
	High float64
}

// Contains reports whether size lies inside the window.
func (r Range) Contains(size int64) bool {
	v := float64(size)
	return v >= r.Low && v <= r.High
}

// Bounds resolves the spec against a baseline.
//
// A single bare bound d gives [b-d, b+d]; "+d" gives [b, b+d] and "-d"
// gives [b-d, b]. With two bounds, a "+" lower bound is added to the
// baseline while a bare or "-" lower bound is subtracted, and a "-" upper
// bound is subtracted while a bare or "+" upper bound is added.
func (s Spec) Bounds(baseline int64) Range {
	b := float64(baseline)

	if !s.pair {
		d := s.lower.offset(baseline)
		switch s.lower.sign {
		case '+':
			return Range{Low: b, High: b + d}
		case '-':
			return Range{Low: b - d, High: b}
		default:
			return Range{Low: b - d, High: b + d}
		}
	}

	r := Range{}
	if s.lower.sign == '+' {
		r.Low = b + s.lower.offset(baseline)
	} else {
		r.Low = b - s.lower.offset(baseline)
	}
	if s.upper.sign == '-' {
		r.High = b - s.upper.offset(baseline)
	} else {
		r.High = b + s.upper.offset(baseline)
	}
	return r
}

// ParseRange parses spec and resolves it against baseline in one step.
func ParseRange(spec string, baseline int64) (Range, error) {
	s, err := ParseSpec(spec)
	if err != nil {
		return Range{}, err
	}
	return s.Bounds(baseline), nil
}
