package config

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/validata/pkg/source"
)

// Options controls how documents are located and read.
type Options struct {
	// SearchDirs are tried, in order, for relative names that do not exist
	// as given.
	SearchDirs []string

	// SystemDir is the last directory tried. Defaults to DefaultSystemDir.
	SystemDir string

	// HTTPClient fetches http and https documents.
	HTTPClient *http.Client

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger

	// Decoder converts external list lines that are not valid UTF-8.
	Decoder *source.Decoder
}

// Load locates, reads and merges the document at path together with its
// includes and external lists.
func Load(ctx context.Context, path string, opts Options) (*Document, error) {
	if opts.SystemDir == "" {
		opts.SystemDir = DefaultSystemDir
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultFetchTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	l := &loader{
		ctx:    ctx,
		opts:   opts,
		resolved: make(map[string]bool),
	}

	loc, err := l.locate(path, "")
	if err != nil {
		return nil, err
	}
	raw, err := l.load(loc)
	if err != nil {
		return nil, err
	}

	dir := ""
	if !isURL(loc) {
		dir = filepath.Dir(loc)
	}
	return build(loc, dir, raw, opts.Logger)
}

// loader holds the state of one Load call.
type loader struct {
	ctx  context.Context
	opts Options

	// resolved holds every document read so far in this Load.
	resolved map[string]bool
}

// load reads the document at loc and merges its includes. Included
// documents are merged in order, then overridden by the document's own keys.
func (l *loader) load(loc string) (map[string]any, error) {
	if l.resolved[loc] {
		return nil, &Error{Path: loc, Key: DirectiveInclude, Err: fmt.Errorf("%w: %s is included more than once", ErrCycle, loc)}
	}
	l.resolved[loc] = true

	data, err := l.read(loc)
	if err != nil {
		return nil, &Error{Path: loc, Err: err}
	}
	raw, err := decode(loc, data)
	if err != nil {
		return nil, &Error{Path: loc, Err: err}
	}
	l.opts.Logger.Debug("loaded config document", "path", loc, "keys", len(raw))

	for key, value := range raw {
		name, ok := value.(string)
		if !ok || Classify(key, value) != KindConstantSet {
			continue
		}
		list, err := l.loadList(name, loc)
		if err != nil {
			return nil, &Error{Path: loc, Key: key, Err: err}
		}
		raw[key] = list
	}

	includes, err := includeNames(raw[DirectiveInclude])
	if err != nil {
		return nil, &Error{Path: loc, Key: DirectiveInclude, Err: err}
	}
	delete(raw, DirectiveInclude)

	merged := make(map[string]any, len(raw))
	for _, name := range includes {
		childLoc, err := l.locate(name, loc)
		if err != nil {
			return nil, err
		}
		child, err := l.load(childLoc)
		if err != nil {
			return nil, err
		}
		maps.Copy(merged, child)
	}
	maps.Copy(merged, raw)

	return merged, nil
}

// loadList reads an external value list: one value per non-empty line.
func (l *loader) loadList(name, parent string) (externalList, error) {
	loc, err := l.locate(name, parent)
	if err != nil {
		return externalList{}, err
	}
	data, err := l.read(loc)
	if err != nil {
		return externalList{}, err
	}

	var values []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		values = append(values, l.opts.Decoder.Decode(line))
	}
	if err := scanner.Err(); err != nil {
		return externalList{}, fmt.Errorf("reading %s: %w", loc, err)
	}

	l.opts.Logger.Debug("loaded external list", "path", loc, "values", len(values))
	return externalList{source: loc, values: values}, nil
}

func includeNames(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		names := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: want a file name, got %T", i, item)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("want a file name or a list of names, got %T", v)
	}
}

// locate resolves name to an absolute path or URL. Relative names are
// tried next to the parent document, as given, in each search directory and
// finally in the system directory.
func (l *loader) locate(name, parent string) (string, error) {
	if isURL(name) {
		return name, nil
	}
	if isURL(parent) && !filepath.IsAbs(name) {
		base, err := url.Parse(parent)
		if err != nil {
			return "", &Error{Path: name, Err: err}
		}
		ref, err := url.Parse(filepath.ToSlash(name))
		if err != nil {
			return "", &Error{Path: name, Err: err}
		}
		return base.ResolveReference(ref).String(), nil
	}

	var candidates []string
	if filepath.IsAbs(name) {
		candidates = []string{name}
	} else {
		if parent != "" {
			candidates = append(candidates, filepath.Join(filepath.Dir(parent), name))
		}
		candidates = append(candidates, name)
		for _, dir := range l.opts.SearchDirs {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		candidates = append(candidates, filepath.Join(l.opts.SystemDir, name))
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(c)
		if err != nil {
			return "", &Error{Path: name, Err: err}
		}
		return abs, nil
	}
	return "", &Error{Path: name, Err: ErrFileNotFound}
}

func (l *loader) read(loc string) ([]byte, error) {
	if !isURL(loc) {
		data, err := os.ReadFile(loc) // #nosec G304 -- user-provided config path is expected
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(l.ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := l.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", loc, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrFileNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", loc, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", loc, err)
	}
	return data, nil
}

// decode parses TOML when loc ends in .toml and YAML otherwise.
func decode(loc string, data []byte) (map[string]any, error) {
	var raw map[string]any

	ext := filepath.Ext(loc)
	if isURL(loc) {
		if u, err := url.Parse(loc); err == nil {
			ext = path.Ext(u.Path)
		}
	}

	if strings.EqualFold(ext, ".toml") {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if raw == nil {
		raw = make(map[string]any)
	}
	return raw, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsNotFound reports whether err means a document could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}
