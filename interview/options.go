package interview

import (
	"log/slog"

	"github.com/StephaneWamba/interviewlab/interview/emit"
)

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the default configuration. Zero-valued fields still
// fall back to defaults; the merged result is validated by NewManager.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithEmitter installs the run-event emitter. Default: NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(m *Manager) { m.emitter = e }
}

// WithMetrics attaches Prometheus collectors. Default: none.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger installs the lifecycle logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}
