// Package metrics exposes Prometheus collectors for the coordination core.
//
// Every method is safe to call on a nil *Metrics, so components can be built
// without instrumentation in tests and library use.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "synapse"

// Metrics holds the core's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	emitted          *prometheus.CounterVec
	dispatched       *prometheus.CounterVec
	handlerFailures  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	ticksSkipped     *prometheus.CounterVec
	monitorCycles    *prometheus.CounterVec
	actions          *prometheus.CounterVec
	derivedRecorded  *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered, together
// with the standard Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_emitted_total",
			Help:      "Envelopes accepted by Emit",
		}, []string{"kind", "priority"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_dispatched_total",
			Help:      "Envelopes handed to the dispatcher, by delivery mode",
		}, []string{"kind", "delivery"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Handler invocations that returned an error or panicked",
		}, []string{"kind", "reason"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running all handlers for one envelope",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"delivery"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Envelopes waiting for the next drain",
		}),
		ticksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Periodic passes skipped because the previous pass was still running",
		}, []string{"loop"}),
		monitorCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Per-subject monitor cycles by outcome",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proactive_actions_total",
			Help:      "Proactive action state transitions",
		}, []string{"state"}),
		derivedRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derived_recorded_total",
			Help:      "Alerts and recommendations recorded",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.emitted, m.dispatched, m.handlerFailures, m.dispatchDuration,
		m.queueDepth, m.ticksSkipped, m.monitorCycles, m.actions, m.derivedRecorded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving m in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Emitted counts an envelope accepted by Emit.
func (m *Metrics) Emitted(kind, priority string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(kind, priority).Inc()
}

// Dispatched counts a dispatch and records how long its handlers took.
func (m *Metrics) Dispatched(kind, delivery string, took time.Duration) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(kind, delivery).Inc()
	m.dispatchDuration.WithLabelValues(delivery).Observe(took.Seconds())
}

// HandlerFailed counts a failed handler invocation. reason is "error" or "panic".
func (m *Metrics) HandlerFailed(kind, reason string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(kind, reason).Inc()
}

// SetQueueDepth records the number of buffered envelopes.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// TickSkipped counts an overlapping pass of the named loop.
func (m *Metrics) TickSkipped(loop string) {
	if m == nil {
		return
	}
	m.ticksSkipped.WithLabelValues(loop).Inc()
}

// MonitorCycle counts a per-subject monitor cycle outcome.
func (m *Metrics) MonitorCycle(outcome string) {
	if m == nil {
		return
	}
	m.monitorCycles.WithLabelValues(outcome).Inc()
}

// ActionTransition counts a proactive action reaching state.
func (m *Metrics) ActionTransition(state string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(state).Inc()
}

// DerivedRecorded counts a recorded alert or recommendation.
func (m *Metrics) DerivedRecorded(kind string) {
	if m == nil {
		return
	}
	m.derivedRecorded.WithLabelValues(kind).Inc()
}

// Server serves /metrics and /healthz.
type Server struct {
	server *http.Server
}

// NewServer creates a Server for m listening on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Serve blocks serving requests until Shutdown is called.
func (s *Server) Serve() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
