package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPReporter posts records as form data.
type HTTPReporter struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPReporter creates a reporter posting to url.
func NewHTTPReporter(url string, opts Options) *HTTPReporter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPReporter{url: url, timeout: timeout, httpClient: client}
}

// Report posts r and fails on any non-2xx status.
func (h *HTTPReporter) Report(ctx context.Context, r Record) error {
	form, err := r.Form()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "validata-reporter")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op.
func (h *HTTPReporter) Close() error {
	return nil
}
