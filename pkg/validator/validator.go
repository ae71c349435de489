// Package validator applies a compiled rule table to data files line by
// line.
package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/ccollicutt/validata/pkg/rules"
	"github.com/ccollicutt/validata/pkg/source"
)

// DefaultMaxReported is how many failing lines a FileResult keeps.
const DefaultMaxReported = 5

// Validator checks lines against the root rule of a table.
type Validator struct {
	table       *rules.Table
	decoder     *source.Decoder
	rng         *source.Range
	maxReported int
}

// Option configures a Validator.
type Option func(*Validator)

// WithDecoder sets the fallback decoder for lines that are not UTF-8.
func WithDecoder(d *source.Decoder) Option {
	return func(v *Validator) {
		v.decoder = d
	}
}

// WithRange restricts CheckFile to a slice of each file's lines.
func WithRange(r *source.Range) Option {
	return func(v *Validator) {
		v.rng = r
	}
}

// WithMaxReported sets how many failing lines are kept per file.
func WithMaxReported(n int) Option {
	return func(v *Validator) {
		if n >= 0 {
			v.maxReported = n
		}
	}
}

// New creates a validator for table. The table must hold an "all" rule,
// which rules.Compile guarantees.
func New(table *rules.Table, opts ...Option) (*Validator, error) {
	if table == nil || table.All() == nil {
		return nil, errors.New("rule table has no root rule")
	}
	v := &Validator{
		table:       table,
		maxReported: DefaultMaxReported,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// CheckLine validates one raw line. Trailing CR and LF are stripped and
// the text is decoded to UTF-8 when needed.
func (v *Validator) CheckLine(line string, ctx *rules.Context) error {
	line = strings.TrimRight(line, "\r\n")
	line = v.decoder.Decode(line)
	return v.table.All().Validate(line, ctx)
}

// LineFailure is one failing line of a file.
type LineFailure struct {
	Line int
	Text string
	Err  error
}

// FileResult summarises the validation of one file.
type FileResult struct {
	Path string

	// Size is the file size in bytes.
	Size int64

	// Lines is the number of lines checked.
	Lines int

	// Errors is the number of failing lines.
	Errors int

	// Failures holds the first failing lines.
	Failures []LineFailure

	Counts map[string]int
	Groups map[string]map[string]int
}

// Passed reports whether every line passed.
func (r *FileResult) Passed() bool {
	return r.Errors == 0
}

// CheckFile validates every line of the file at path. Line failures are
// collected and processing continues to the end of the file; only I/O
// errors and cancellation stop it.
func (v *Validator) CheckFile(ctx context.Context, path string) (*FileResult, error) {
	src, err := source.Open(path, v.rng)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	return v.check(ctx, src, path, src.Size())
}

func (v *Validator) check(ctx context.Context, src source.LineSource, path string, size int64) (*FileResult, error) {
	result := &FileResult{Path: path, Size: size}
	rctx := rules.NewContext()

	for {
		line, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("validating %s: %w", path, err)
		}

		result.Lines++
		if err := v.CheckLine(line.Text, rctx); err != nil {
			result.Errors++
			if len(result.Failures) < v.maxReported {
				result.Failures = append(result.Failures, LineFailure{
					Line: line.Num,
					Text: v.decoder.Decode(strings.TrimRight(line.Text, "\r\n")),
					Err:  err,
				})
			}
		}
	}

	result.Counts = maps.Clone(rctx.Counts)
	result.Groups = maps.Clone(rctx.Groups)
	return result, nil
}
