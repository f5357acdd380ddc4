// Package metrics exposes Prometheus counters for the dialog dispatch core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Update processing outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeDiscarded = "discarded"
	OutcomeError     = "error"
)

// Restore failure reasons.
const (
	ReasonCorruptParams  = "corrupt_params"
	ReasonUnknownLocator = "unknown_locator"
	ReasonInvalidParams  = "invalid_params"
)

// Set groups the counters recorded by the runner and the diagnostics sink.
type Set struct {
	UpdatesProcessed     *prometheus.CounterVec
	ConversationsCreated prometheus.Counter
	RestoreResets        *prometheus.CounterVec
	DiagnosticEvents     prometheus.Counter

	registry *prometheus.Registry
}

// New builds a Set registered on its own registry.
func New() *Set {
	reg := prometheus.NewRegistry()
	s := &Set{
		UpdatesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialogbot_updates_processed_total",
			Help: "Inbound updates handled, by outcome.",
		}, []string{"outcome"}),
		ConversationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dialogbot_conversations_created_total",
			Help: "Conversation rows created on first contact.",
		}),
		RestoreResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialogbot_restore_resets_total",
			Help: "State restorations that fell back to the root state, by reason.",
		}, []string{"reason"}),
		DiagnosticEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dialogbot_diagnostic_events_total",
			Help: "Diagnostic warnings reported to the sink.",
		}),
		registry: reg,
	}
	reg.MustRegister(
		s.UpdatesProcessed,
		s.ConversationsCreated,
		s.RestoreResets,
		s.DiagnosticEvents,
		collectors.NewGoCollector(),
	)
	return s
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Outcome increments the processed counter; safe on a nil Set.
func (s *Set) Outcome(outcome string) {
	if s == nil {
		return
	}
	s.UpdatesProcessed.WithLabelValues(outcome).Inc()
}

// Created increments the created-conversations counter; safe on a nil Set.
func (s *Set) Created() {
	if s == nil {
		return
	}
	s.ConversationsCreated.Inc()
}

// Reset increments the restore reset counter; safe on a nil Set.
func (s *Set) Reset(reason string) {
	if s == nil {
		return
	}
	s.RestoreResets.WithLabelValues(reason).Inc()
}

// Diagnostic increments the diagnostics counter; safe on a nil Set.
func (s *Set) Diagnostic() {
	if s == nil {
		return
	}
	s.DiagnosticEvents.Inc()
}
