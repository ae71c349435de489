// Package config loads validata configuration documents.
//
// A document maps keys to values and every key is classified by its prefix:
// "__name" keys are directives, "_name" keys are value sets and all other
// keys are rule specifications.
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/source"
)

// Kind classifies a document key.
type Kind int

const (
	KindRule Kind = iota
	KindConstantSet
	KindExternalList
	KindDirective
)

func (k Kind) String() string {
	switch k {
	case KindRule:
		return "rule"
	case KindConstantSet:
		return "constant set"
	case KindExternalList:
		return "external list"
	case KindDirective:
		return "directive"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsSet reports whether the key holds a set of allowed values.
func (k Kind) IsSet() bool {
	return k == KindConstantSet || k == KindExternalList
}

// Entry is one classified key of a merged document.
type Entry struct {
	Key  string
	Kind Kind

	// Spec is the raw rule specification (KindRule) or directive value.
	Spec any

	// Values holds the allowed values of a set, in document order.
	Values []string

	// Source is the file or URL an external list was read from.
	Source string
}

// Directives are the "__" keys that configure a run.
type Directives struct {
	// LogFile is the history store path, absolute when the config is local.
	LogFile string

	// Range restricts validation to a slice of each file's lines.
	Range *source.Range

	// Size holds the size anomaly thresholds; nil disables classification.
	Size *anomaly.Thresholds

	// Requires is the validata version constraint, if any.
	Requires *semver.Constraints
}

// Document is a loaded, merged and classified configuration.
type Document struct {
	// Path is the absolute path or URL of the top-level document.
	Path string

	// Dir is the directory relative directives resolve against.
	Dir string

	Directives Directives

	entries map[string]*Entry
	keys    []string
}

// Keys returns every non-directive key in sorted order.
func (d *Document) Keys() []string {
	return slices.Clone(d.keys)
}

// Entry returns the classified entry for key.
func (d *Document) Entry(key string) (*Entry, bool) {
	e, ok := d.entries[key]
	return e, ok
}

// Entries returns the entries of the given kinds in sorted key order.
func (d *Document) Entries(kinds ...Kind) []*Entry {
	var out []*Entry
	for _, key := range d.keys {
		e := d.entries[key]
		if slices.Contains(kinds, e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

var (
	// ErrConfig matches every configuration error.
	ErrConfig = errors.New("configuration error")

	// ErrFileNotFound is returned when no candidate location holds a document.
	ErrFileNotFound = errors.New("file not found")

	// ErrCycle is returned for include or reference cycles.
	ErrCycle = errors.New("cycle detected")
)

// Error is a configuration error. It always matches ErrConfig.
type Error struct {
	Path string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Key != "":
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Key, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	case e.Key != "":
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrConfig.
func (e *Error) Is(target error) bool {
	return target == ErrConfig
}

// Errorf builds a configuration error for key.
func Errorf(key, format string, args ...any) error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}
