package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/source"
	"github.com/ccollicutt/validata/pkg/version"
)

// Directive keys.
const (
	DirectiveInclude  = "__include"
	DirectiveLogFile  = "__logfile"
	DirectiveRange    = "__range"
	DirectiveSize     = "__size"
	DirectiveRequires = "__requires"
)

// externalList is a "_name" value already read from its file.
type externalList struct {
	source string
	values []string
}

// Classify returns the kind of key given its raw value.
func Classify(key string, value any) Kind {
	switch {
	case strings.HasPrefix(key, "__"):
		return KindDirective
	case strings.HasPrefix(key, "_"):
		if _, ok := value.(externalList); ok {
			return KindExternalList
		}
		return KindConstantSet
	default:
		return KindRule
	}
}

// Parse classifies an in-memory document. External lists are not resolved:
// a "_name" key holding a single string is an error here, use Load instead.
func Parse(raw map[string]any) (*Document, error) {
	return build("", "", raw, nil)
}

// build classifies a merged document and extracts its directives.
func build(path, dir string, raw map[string]any, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	doc := &Document{
		Path:    path,
		Dir:     dir,
		entries: make(map[string]*Entry, len(raw)),
	}

	for _, key := range slices.Sorted(maps.Keys(raw)) {
		value := raw[key]
		kind := Classify(key, value)

		switch kind {
		case KindDirective:
			if err := doc.applyDirective(key, value, logger); err != nil {
				return nil, &Error{Path: path, Key: key, Err: err}
			}
			continue

		case KindExternalList:
			list := value.(externalList)
			doc.entries[key] = &Entry{Key: key, Kind: kind, Values: list.values, Source: list.source}

		case KindConstantSet:
			values, err := setValues(value)
			if err != nil {
				return nil, &Error{Path: path, Key: key, Err: err}
			}
			doc.entries[key] = &Entry{Key: key, Kind: kind, Values: values}

		default:
			doc.entries[key] = &Entry{Key: key, Kind: kind, Spec: value}
		}
		doc.keys = append(doc.keys, key)
	}

	return doc, nil
}

// setValues stringifies the members of a constant set.
func setValues(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return nil, fmt.Errorf("external list %q was not loaded", v)
	case []any:
		values := make([]string, 0, len(v))
		for i, item := range v {
			switch item.(type) {
			case map[string]any, []any, nil:
				return nil, fmt.Errorf("item %d: set members must be scalars", i)
			}
			values = append(values, fmt.Sprint(item))
		}
		return values, nil
	case []string:
		return slices.Clone(v), nil
	default:
		return nil, fmt.Errorf("value sets must be a list or a file name, got %T", value)
	}
}

func (d *Document) applyDirective(key string, value any, logger *slog.Logger) error {
	switch key {
	case DirectiveInclude:
		// Resolved by the loader.
		return nil

	case DirectiveLogFile:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("must be a file name, got %v", value)
		}
		if d.Dir != "" && !filepath.IsAbs(s) && !isURL(d.Dir) {
			s = filepath.Join(d.Dir, s)
		}
		d.Directives.LogFile = s

	case DirectiveRange:
		r, err := source.ParseRange(value)
		if err != nil {
			return err
		}
		d.Directives.Range = r

	case DirectiveSize:
		th, err := parseSize(value)
		if err != nil {
			return err
		}
		d.Directives.Size = th

	case DirectiveRequires:
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		c, err := semver.NewConstraint(s)
		if err != nil {
			return fmt.Errorf("invalid version constraint %q: %w", s, err)
		}
		if err := checkRequires(c, version.Version); err != nil {
			return err
		}
		d.Directives.Requires = c

	default:
		logger.Debug("ignoring unknown directive", "key", key)
	}
	return nil
}

func parseSize(value any) (*anomaly.Thresholds, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be a mapping with valid and alert, got %T", value)
	}

	var valid, alert string
	for k, v := range m {
		s := ""
		if v != nil {
			s = fmt.Sprint(v)
		}
		switch k {
		case "valid":
			valid = s
		case "alert":
			alert = s
		default:
			return nil, fmt.Errorf("unknown key %q (want valid or alert)", k)
		}
	}
	return anomaly.ParseThresholds(valid, alert)
}

// checkRequires validates the running version. Development builds that do
// not carry a semantic version are accepted.
func checkRequires(c *semver.Constraints, running string) error {
	v, err := semver.NewVersion(running)
	if err != nil {
		return nil
	}
	if ok, errs := c.Validate(v); !ok {
		return fmt.Errorf("validata %s does not satisfy %s: %w", running, c, errors.Join(errs...))
	}
	return nil
}
