// Package diagnostics provides the structured warning sink used when a
// persisted conversation state cannot be restored. It replaces an external
// error tracker: every event gets its own id so operators can correlate a
// log line with an alert.
package diagnostics

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/m3rciful/dialogbot/core/logger"
	"github.com/m3rciful/dialogbot/core/metrics"
)

// Reporter receives structured warnings with arbitrary key-value context.
type Reporter interface {
	Warning(ctx context.Context, event string, attrs ...slog.Attr)
}

// LogReporter writes diagnostic events through the structured logger and
// counts them in the metrics set (which may be nil).
type LogReporter struct {
	Metrics *metrics.Set
}

// NewLogReporter builds a log-backed reporter.
func NewLogReporter(m *metrics.Set) *LogReporter {
	return &LogReporter{Metrics: m}
}

// Warning reports one diagnostic event stamped with a fresh event id.
func (r *LogReporter) Warning(ctx context.Context, event string, attrs ...slog.Attr) {
	stamped := make([]slog.Attr, 0, len(attrs)+1)
	stamped = append(stamped, slog.String("event_id", uuid.NewString()))
	stamped = append(stamped, attrs...)
	logger.Warn(ctx, "diagnostics", event, stamped...)
	r.Metrics.Diagnostic()
}

// Nop discards all events. Useful when wiring the runner in tools that have
// no diagnostics pipeline.
type Nop struct{}

// Warning implements Reporter.
func (Nop) Warning(context.Context, string, ...slog.Attr) {}
