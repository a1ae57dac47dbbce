package interview

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/StephaneWamba/interviewlab/interview/model"
)

// Metrics collects the engine's Prometheus metrics under the "interview"
// namespace. A nil *Metrics is valid everywhere and records nothing, so
// instrumentation is strictly opt-in.
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	nodeLatency        *prometheus.HistogramVec
	lmCalls            *prometheus.CounterVec
	lmLatency          *prometheus.HistogramVec
	lmRetries          *prometheus.CounterVec
	sandboxExecutions  *prometheus.CounterVec
	checkpointsSaved   prometheus.Counter
	checkpointsSkipped prometheus.Counter
	duplicateWriters   prometheus.Counter
	unknownRoutes      prometheus.Counter
	activeSessions     prometheus.Gauge
}

// NewMetrics registers the engine's collectors with the given registerer.
// Pass prometheus.DefaultRegisterer for the process-global registry or a
// private registry for isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "runs_total",
			Help:      "Graph runs by outcome.",
		}, []string{"outcome"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "interview",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 15000, 30000},
		}, []string{"node"}),
		lmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "lm_calls_total",
			Help:      "Language-model calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		lmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "interview",
			Name:      "lm_call_latency_ms",
			Help:      "End-to-end language-model call duration in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 45000},
		}, []string{"provider"}),
		lmRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "lm_retries_total",
			Help:      "Extra language-model attempts beyond the first, by provider.",
		}, []string{"provider"}),
		sandboxExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "sandbox_executions_total",
			Help:      "Code executions by outcome.",
		}, []string{"outcome"}),
		checkpointsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "checkpoints_saved_total",
			Help:      "Checkpoints written successfully.",
		}),
		checkpointsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "checkpoints_skipped_total",
			Help:      "Completed runs whose checkpoint write failed.",
		}),
		duplicateWriters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "duplicate_writers_total",
			Help:      "Single-writer keys written by two nodes in one run.",
		}),
		unknownRoutes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "interview",
			Name:      "unknown_routes_total",
			Help:      "Routing targets outside the declared node set.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "interview",
			Name:      "active_sessions",
			Help:      "Coordinators currently held in memory.",
		}),
	}
}

// RecordRun counts one run by outcome ("ok" or "error").
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}

// RecordNode observes one node execution.
func (m *Metrics) RecordNode(node NodeName, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeLatency.WithLabelValues(string(node)).Observe(float64(d.Milliseconds()))
}

// RecordLMCall observes one finished language-model call. Shaped as a
// model.Client observer; Manager wires it when metrics are attached.
func (m *Metrics) RecordLMCall(stats model.CallStats) {
	if m == nil {
		return
	}
	m.lmCalls.WithLabelValues(stats.Provider, stats.Outcome).Inc()
	m.lmLatency.WithLabelValues(stats.Provider).Observe(float64(stats.Elapsed.Milliseconds()))
	if stats.Attempts > 1 {
		m.lmRetries.WithLabelValues(stats.Provider).Add(float64(stats.Attempts - 1))
	}
}

// RecordSandbox counts one code execution by outcome. Shaped as a
// sandbox.Client observer.
func (m *Metrics) RecordSandbox(outcome string, _ time.Duration) {
	if m == nil {
		return
	}
	m.sandboxExecutions.WithLabelValues(outcome).Inc()
}

// RecordCheckpoint counts a saved or skipped checkpoint.
func (m *Metrics) RecordCheckpoint(saved bool) {
	if m == nil {
		return
	}
	if saved {
		m.checkpointsSaved.Inc()
	} else {
		m.checkpointsSkipped.Inc()
	}
}

// RecordDuplicateWriter counts one duplicate-writer warning.
func (m *Metrics) RecordDuplicateWriter() {
	if m == nil {
		return
	}
	m.duplicateWriters.Inc()
}

// RecordUnknownRoute counts one unknown-route fallback.
func (m *Metrics) RecordUnknownRoute() {
	if m == nil {
		return
	}
	m.unknownRoutes.Inc()
}

// SessionDelta moves the active-session gauge.
func (m *Metrics) SessionDelta(delta int) {
	if m == nil {
		return
	}
	m.activeSessions.Add(float64(delta))
}
