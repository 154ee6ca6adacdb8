package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured staking events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deltastake",
				Subsystem: "events",
				Name:      "recorded_total",
				Help:      "Count of indexed events segmented by type.",
			}, []string{"type"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deltastake",
				Subsystem: "events",
				Name:      "record_failures_total",
				Help:      "Count of events the indexer failed to persist.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.failures)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.emitted.WithLabelValues(normalizeType(eventType)).Inc()
}

// RecordFailure increments the failure counter for the supplied event type.
func (m *eventMetrics) RecordFailure(eventType string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(normalizeType(eventType)).Inc()
}

func normalizeType(eventType string) string {
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
