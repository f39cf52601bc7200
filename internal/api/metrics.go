package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/AaronLay10/Haeccstable/internal/events"
	"github.com/AaronLay10/Haeccstable/internal/version"
)

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := fmt.Sprintf(`instance="%s",version="%s"`, hostname, version.Version)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	m := metricWriter{w: w, labels: labels}

	m.write("haeccstable_uptime_seconds", "gauge",
		"Number of seconds since the runtime started", time.Since(s.startTime).Seconds())
	m.write("haeccstable_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount())
	m.write("haeccstable_ws_clients", "gauge",
		"Number of active WebSocket event subscribers", events.SubscriberCount())

	if s.opts.Connections != nil {
		c := s.opts.Connections.Stats()
		m.write("haeccstable_connections_active", "gauge",
			"Number of open command connections", c.Active)
		m.write("haeccstable_connections_accepted_total", "counter",
			"Total command connections accepted", c.Accepted)
		m.write("haeccstable_connections_rejected_total", "counter",
			"Total command connections refused at the connection limit", c.Rejected)
	}

	if s.opts.Requests != nil {
		rs := s.opts.Requests.Stats()
		m.write("haeccstable_requests_total", "counter",
			"Total commands routed", rs.Requests)
		m.write("haeccstable_request_failures_total", "counter",
			"Total commands answered with an error", rs.Failures)
	}

	if s.opts.State != nil {
		sum := s.opts.State.StateSummary(false)
		m.header("haeccstable_entities", "gauge", "Number of entities per dossier collection")
		for _, c := range []struct {
			name  string
			count int
		}{
			{"variables", sum.Variables.Count},
			{"functions", sum.Functions.Count},
			{"processes", sum.Processes.Count},
			{"layers", sum.Layers.Count},
			{"windows", sum.Windows.Count},
			{"devices", sum.Devices.Count},
		} {
			fmt.Fprintf(w, "haeccstable_entities{%s,collection=\"%s\"} %d\n", labels, c.name, c.count)
		}
	}

	m.header("haeccstable_component_ready", "gauge", "Whether a runtime component is ready (1) or not (0)")
	for _, name := range s.opts.Readiness.names() {
		fmt.Fprintf(w, "haeccstable_component_ready{%s,component=\"%s\"} %d\n", labels, name, boolGauge(s.opts.Readiness.Is(name)))
	}
}

type metricWriter struct {
	w      io.Writer
	labels string
}

func (m metricWriter) header(name, mtype, help string) {
	fmt.Fprintf(m.w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(m.w, "# TYPE %s %s\n", name, mtype)
}

func (m metricWriter) write(name, mtype, help string, value interface{}) {
	m.header(name, mtype, help)
	fmt.Fprintf(m.w, "%s{%s} %v\n", name, m.labels, value)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
