package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when a nats url has no path.
const DefaultSubject = "validata.results"

type publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSReporter publishes records as JSON messages.
type NATSReporter struct {
	nc      publisher
	subject string
	timeout time.Duration
}

// NewNATSReporter connects to the server of u. The url path, with slashes
// turned into dots, is the subject: nats://host:4222/validata/results
// publishes to "validata.results".
func NewNATSReporter(u *url.URL, opts Options) (*NATSReporter, error) {
	subject := strings.ReplaceAll(strings.Trim(u.Path, "/"), "/", ".")
	if subject == "" {
		subject = DefaultSubject
	}

	server := *u
	server.Path = ""
	server.RawQuery = ""
	nc, err := nats.Connect(server.String(),
		nats.Name("validata-reporter"),
		nats.Timeout(opts.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return newNATSReporter(nc, subject, opts.Timeout), nil
}

func newNATSReporter(nc publisher, subject string, timeout time.Duration) *NATSReporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NATSReporter{nc: nc, subject: subject, timeout: timeout}
}

// Subject returns the subject records are published to.
func (n *NATSReporter) Subject() string {
	return n.subject
}

// Report publishes r and waits for the server to acknowledge the flush.
func (n *NATSReporter) Report(ctx context.Context, r Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

// Close closes the connection.
func (n *NATSReporter) Close() error {
	if n == nil || n.nc == nil {
		return nil
	}
	n.nc.Close()
	return nil
}
