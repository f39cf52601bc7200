package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/ipc"
	"github.com/AaronLay10/Haeccstable/internal/router"
	"github.com/AaronLay10/Haeccstable/internal/state"
)

type fakeState struct{}

func (fakeState) StateSummary(verbose bool) state.Summary {
	s := state.Summary{
		Variables: state.CollectionSummary{Count: 2},
		Windows:   state.CollectionSummary{Count: 1},
	}
	if verbose {
		s.Variables.Names = []string{"cam", "main"}
		s.Windows.Names = []string{"main"}
	}
	return s
}

type fakeConns struct{}

func (fakeConns) Stats() ipc.Stats { return ipc.Stats{Accepted: 3, Rejected: 1, Active: 2} }

type fakeRequests struct{}

func (fakeRequests) Stats() router.Stats { return router.Stats{Requests: 10, Failures: 4} }

func newTestServer() *Server {
	return NewServer(Options{
		State:       fakeState{},
		Connections: fakeConns{},
		Requests:    fakeRequests{},
	})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	w := get(t, newTestServer(), "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "haeccstable" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReadyEndpoint_AllReady(t *testing.T) {
	s := newTestServer()
	s.opts.Readiness.Set("socket", true, false)
	s.opts.Readiness.Set("dossier", true, false)

	w := get(t, s, "/ready")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Ready {
		t.Error("expected ready=true")
	}
	if !resp.Components["socket"].Ready {
		t.Errorf("expected socket ready, got %+v", resp.Components["socket"])
	}
}

func TestReadyEndpoint_RequiredNotReady(t *testing.T) {
	s := newTestServer()
	s.opts.Readiness.Set("socket", false, false)

	w := get(t, s, "/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyEndpoint_OptionalUnavailable(t *testing.T) {
	s := newTestServer()
	s.opts.Readiness.Set("socket", true, false)
	s.opts.Readiness.Set("engine", false, true)

	w := get(t, s, "/ready")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 (optional dependency), got %d", w.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	w := get(t, newTestServer(), "/state")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp state.Summary
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Variables.Count != 2 || len(resp.Variables.Names) != 2 {
		t.Errorf("unexpected variables %+v", resp.Variables)
	}

	w = get(t, NewServer(Options{}), "/state")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without state, got %d", w.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	events.Clear()
	for i := 0; i < 3; i++ {
		events.Emit("info", "variable.declared", "", map[string]interface{}{"i": i})
	}

	w := get(t, newTestServer(), "/events")
	var all []events.Event
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}

	w = get(t, newTestServer(), "/events?limit=1")
	var one []events.Event
	json.NewDecoder(w.Body).Decode(&one)
	if len(one) != 1 || one[0].Fields["i"] != float64(2) {
		t.Errorf("expected the last event, got %+v", one)
	}

	w = get(t, newTestServer(), "/events?limit=zero")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer()
	s.opts.Readiness.Set("socket", true, false)
	s.opts.Readiness.Set("engine", false, true)

	w := get(t, s, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %s", ct)
	}

	body := w.Body.String()
	for _, want := range []string{
		"# TYPE haeccstable_uptime_seconds gauge",
		"# TYPE haeccstable_events_total counter",
		"haeccstable_connections_active{",
		"} 2\n",
		"haeccstable_requests_total{",
		"haeccstable_request_failures_total{",
		`collection="variables"} 2`,
		`collection="windows"} 1`,
		`component="socket"} 1`,
		`component="engine"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}

func TestMetricsMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest("POST", "/metrics", nil)
	w := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- newTestServer().Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	waitFor(t, 2*time.Second, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "monitor to answer /health")

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
