package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/ipc"
	"github.com/AaronLay10/Haeccstable/internal/router"
	"github.com/AaronLay10/Haeccstable/internal/state"
)

// StateReporter summarizes runtime state. The state manager implements it.
type StateReporter interface {
	StateSummary(verbose bool) state.Summary
}

// ConnectionReporter exposes Command Server counters.
type ConnectionReporter interface {
	Stats() ipc.Stats
}

// RequestReporter exposes Message Router counters.
type RequestReporter interface {
	Stats() router.Stats
}

type Options struct {
	Addr        string
	State       StateReporter
	Connections ConnectionReporter
	Requests    RequestReporter
	Readiness   *Readiness
}

// Server is the read-only monitor HTTP API.
type Server struct {
	opts      Options
	startTime time.Time
	mux       *http.ServeMux
}

func NewServer(opts Options) *Server {
	if opts.Readiness == nil {
		opts.Readiness = NewReadiness()
	}
	s := &Server{
		opts:      opts,
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.HandleFunc("/state", s.stateHandler)
	s.mux.HandleFunc("/events", s.eventsHandler)
	s.mux.HandleFunc("/metrics", s.metricsHandler)
	s.mux.HandleFunc("/ws/events", wsEventsHandler)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "haeccstable",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]ComponentStatus `json:"components"`
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Ready:      s.opts.Readiness.Ready(),
		Components: s.opts.Readiness.Snapshot(),
	}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.State == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "state not available"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.State.StateSummary(true))
}

// eventsHandler returns the ring buffer, or the last ?limit=n events.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		writeJSON(w, http.StatusOK, events.RecentEvents(n))
		return
	}
	writeJSON(w, http.StatusOK, events.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves on opts.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("monitor API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// websocket handlers are hijacked and end when subscribers close
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
