// Package source reads data files line by line for validation.
package source

import (
	"context"
)

// Line is a single line read from a data file.
type Line struct {
	// Text is the raw line content including any trailing line terminator.
	Text string

	// Num is the 1-based line number within the file.
	Num int
}

// LineSource provides an iterator over the lines of one data file.
// Implementations must be safe for sequential access (not concurrent).
type LineSource interface {
	// Next returns the next line within the configured range.
	// Returns io.EOF when no more lines are available.
	Next(ctx context.Context) (*Line, error)

	// Close releases any resources held by the source.
	Close() error
}
