// Package report sends per-file validation results to a remote history
// endpoint.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultTimeout bounds every send.
const DefaultTimeout = 10 * time.Second

// Record is the result of one file in one run.
type Record struct {
	Filename string                    `json:"filename"`
	Version  string                    `json:"version"`
	Size     int64                     `json:"size"`
	Delta    int                       `json:"delta"`
	Error    int                       `json:"error"`
	Last     int64                     `json:"last"`
	Count    map[string]int            `json:"count"`
	Group    map[string]map[string]int `json:"group"`
}

// Form encodes the record as form fields. Count and Group are sent as JSON.
func (r Record) Form() (url.Values, error) {
	count := r.Count
	if count == nil {
		count = map[string]int{}
	}
	group := r.Group
	if group == nil {
		group = map[string]map[string]int{}
	}
	countJSON, err := json.Marshal(count)
	if err != nil {
		return nil, fmt.Errorf("encoding count: %w", err)
	}
	groupJSON, err := json.Marshal(group)
	if err != nil {
		return nil, fmt.Errorf("encoding group: %w", err)
	}

	return url.Values{
		"filename": {r.Filename},
		"version":  {r.Version},
		"size":     {strconv.FormatInt(r.Size, 10)},
		"delta":    {strconv.Itoa(r.Delta)},
		"error":    {strconv.Itoa(r.Error)},
		"last":     {strconv.FormatInt(r.Last, 10)},
		"count":    {string(countJSON)},
		"group":    {string(groupJSON)},
	}, nil
}

// Reporter delivers records.
type Reporter interface {
	Report(ctx context.Context, r Record) error
	Close() error
}

// Options configures a reporter.
type Options struct {
	// Timeout bounds each send. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient is used by http and https reporters.
	HTTPClient *http.Client
}

// New returns a reporter for rawURL, chosen by scheme: http and https post
// form data, nats publishes JSON.
func New(rawURL string, opts Options) (Reporter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid report url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("report url %q must have a host", rawURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPReporter(rawURL, opts), nil
	case "nats", "tls":
		return NewNATSReporter(u, opts)
	default:
		return nil, fmt.Errorf("unsupported report url scheme %q (want http, https or nats)", u.Scheme)
	}
}
