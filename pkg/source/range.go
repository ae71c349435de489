package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var rangePattern = regexp.MustCompile(`^\s*(-?\d+)\s*(?:,\s*(-?\d*)\s*)?$`)

// Range selects a window of lines from a data file using half-open slice
// semantics over 0-based line indices. Negative offsets count from the end.
type Range struct {
	Start   int
	Stop    int
	HasStop bool
}

// ParseRange parses a __range value. A single integer is the start offset
// ("5" skips the first five lines); "start,stop" selects [start, stop).
// Both bounds may be negative to count from the end of the file.
func ParseRange(v any) (*Range, error) {
	switch n := v.(type) {
	case int:
		return &Range{Start: n}, nil
	case int64:
		return &Range{Start: int(n)}, nil
	case float64:
		if n != float64(int(n)) {
			return nil, fmt.Errorf("range %v is not an integer", n)
		}
		return &Range{Start: int(n)}, nil
	case string:
		return parseRangeString(n)
	default:
		return nil, fmt.Errorf("range must be an integer or \"start,stop\", got %T", v)
	}
}

func parseRangeString(s string) (*Range, error) {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid range %q (want \"start\" or \"start,stop\")", s)
	}

	start, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", m[1], err)
	}
	r := &Range{Start: start}

	if stop := strings.TrimSpace(m[2]); stop != "" && stop != "-" {
		n, err := strconv.Atoi(stop)
		if err != nil {
			return nil, fmt.Errorf("invalid range stop %q: %w", stop, err)
		}
		r.Stop = n
		r.HasStop = true
	}
	return r, nil
}

// NeedsTotal reports whether resolving the range requires the line count.
func (r *Range) NeedsTotal() bool {
	return r != nil && (r.Start < 0 || (r.HasStop && r.Stop < 0))
}

// Resolve converts the range into absolute [start, stop) indices for a file
// with total lines. A stop of -1 means unbounded and is only returned when
// total is negative (unknown) and the range has no stop.
func (r *Range) Resolve(total int) (start, stop int) {
	if r == nil {
		return 0, total
	}
	start = clamp(r.Start, total)
	stop = total
	if r.HasStop {
		stop = clamp(r.Stop, total)
	}
	return start, stop
}

func clamp(i, total int) int {
	if total < 0 {
		return i
	}
	if i < 0 {
		i += total
		if i < 0 {
			i = 0
		}
	}
	if i > total {
		i = total
	}
	return i
}

// String renders the range in the __range grammar.
func (r *Range) String() string {
	if r == nil {
		return ""
	}
	if r.HasStop {
		return fmt.Sprintf("%d,%d", r.Start, r.Stop)
	}
	return strconv.Itoa(r.Start)
}
