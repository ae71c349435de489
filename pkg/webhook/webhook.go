// Package webhook notifies an HTTP endpoint about finished validation runs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ccollicutt/validata/pkg/output"
)

// DefaultTimeout bounds a notification when SendOptions.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// EventRunFinished is the event name of every notification.
const EventRunFinished = "validata.run.finished"

// maxResponseBody caps how much of the endpoint's reply is kept.
const maxResponseBody = 1 << 20

// Trigger decides which runs are notified.
type Trigger string

const (
	TriggerOnFailure Trigger = "on_failure"
	TriggerAlways    Trigger = "always"
	TriggerNever     Trigger = "never"
)

// ParseTrigger validates a trigger name. Empty means TriggerOnFailure.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case "":
		return TriggerOnFailure, nil
	case TriggerOnFailure, TriggerAlways, TriggerNever:
		return t, nil
	default:
		return "", fmt.Errorf("invalid webhook trigger %q (use on_failure, always, or never)", s)
	}
}

// ShouldSend reports whether report fires the trigger. on_failure fires for
// failed files and for size anomalies that did not fail a file.
func (t Trigger) ShouldSend(report *output.Report) bool {
	switch t {
	case TriggerAlways:
		return true
	case TriggerNever:
		return false
	default:
		return report.HasFailures() || report.Summary.SizeAnomalies > 0
	}
}

// Event is the JSON body posted to the endpoint.
type Event struct {
	Event  string         `json:"event"`
	ID     string         `json:"id"`
	SentAt time.Time      `json:"sent_at"`
	Passed bool           `json:"passed"`
	Report *output.Report `json:"report"`
}

// NewEvent wraps report in a run-finished event with a fresh id.
func NewEvent(report *output.Report) Event {
	return Event{
		Event:  EventRunFinished,
		ID:     uuid.NewString(),
		SentAt: time.Now().UTC(),
		Passed: !report.HasFailures(),
		Report: report,
	}
}

// Client posts run events.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a webhook client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		userAgent:  "validata-webhook",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendOptions addresses one notification.
type SendOptions struct {
	URL     string
	Token   string // sent as a Bearer token when set
	Timeout time.Duration
}

// Response is the outcome of one notification.
type Response struct {
	// EventID is also sent as the X-Request-Id header.
	EventID    string
	StatusCode int
	Body       string
	Duration   time.Duration
	Error      error
}

// Success reports whether the endpoint accepted the event.
func (r *Response) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Send posts report as a run-finished event. Failures are returned in the
// Response, never as a panic or a partial send.
func (c *Client) Send(ctx context.Context, report *output.Report, opts SendOptions) *Response {
	start := time.Now()
	event := NewEvent(report)
	resp := &Response{EventID: event.ID}

	if err := c.post(ctx, event, opts, resp); err != nil {
		resp.Error = err
	}
	resp.Duration = time.Since(start)
	return resp
}

func (c *Client) post(ctx context.Context, event Event, opts SendOptions, resp *Response) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", event.ID)
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	reply, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	resp.StatusCode = httpResp.StatusCode
	resp.Body = string(reply)
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", httpResp.StatusCode)
	}
	return nil
}
