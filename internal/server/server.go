// Package server serves the history viewer and the result collector endpoint
// that validata reporters post to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ccollicutt/validata/pkg/anomaly"
	"github.com/ccollicutt/validata/pkg/history"
	"github.com/ccollicutt/validata/pkg/logging"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 5 * time.Second
	maxFormBytes           = 1 << 20
)

// ErrStart is returned when the listener cannot be started.
var ErrStart = errors.New("starting history server")

// Server exposes a history store over HTTP.
type Server struct {
	store  *history.Store
	logger *slog.Logger
}

// New creates a Server backed by store.
func New(store *history.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{store: store, logger: logger}
}

// Routes returns the router serving all endpoints.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api", s.handleRecord)
	r.Get("/history", s.handleHistory)
	r.Get("/tsv", s.handleTSV)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Join(ErrStart, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("history server listening", "addr", ln.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("history server shutdown", "error", err)
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, runErr)
	}
	return nil
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	filename, entry, err := parseEntry(r.PostForm)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.Record(filename, entry); err != nil {
		s.logger.Error("recording result", "filename", filename, "error", err)
		http.Error(w, "recording result failed", http.StatusInternalServerError)
		return
	}

	s.logger.Info("recorded result",
		"filename", filename,
		"version", entry.Version,
		"size", entry.Size,
		"delta", entry.Delta,
		"remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

// formValues is the subset of url.Values parseEntry reads.
type formValues interface {
	Get(key string) string
}

func parseEntry(form formValues) (string, history.Entry, error) {
	var e history.Entry

	filename := form.Get("filename")
	if filename == "" {
		return "", e, errors.New("missing filename")
	}
	e.Version = form.Get("version")

	var err error
	if e.Size, err = formInt64(form, "size"); err != nil {
		return "", e, err
	}
	if e.Last, err = formInt64(form, "last"); err != nil {
		return "", e, err
	}
	delta, err := formInt64(form, "delta")
	if err != nil {
		return "", e, err
	}
	if delta < -2 || delta > 2 {
		return "", e, fmt.Errorf("delta %d out of range", delta)
	}
	e.Delta = int(delta)
	errs, err := formInt64(form, "error")
	if err != nil {
		return "", e, err
	}
	e.Error = int(errs)

	if v := form.Get("count"); v != "" {
		if err := json.Unmarshal([]byte(v), &e.Count); err != nil {
			return "", e, fmt.Errorf("invalid count: %w", err)
		}
	}
	if v := form.Get("group"); v != "" {
		if err := json.Unmarshal([]byte(v), &e.Group); err != nil {
			return "", e, fmt.Errorf("invalid group: %w", err)
		}
	}
	return filename, e, nil
}

func formInt64(form formValues, key string) (int64, error) {
	v := form.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Version\tSize\tDelta\tError")
	for _, e := range s.store.History(filename) {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", e.Version, e.Size, anomaly.Delta(e.Delta).Class(), e.Error)
	}
}

func (s *Server) handleTSV(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	fmt.Fprintln(w, "date\tclose")
	for _, e := range s.store.History(filename) {
		fmt.Fprintf(w, "%s\t%d\n", e.Version, e.Size)
	}
}
