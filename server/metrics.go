package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session activity for the /metrics endpoint.
type Metrics struct {
	SessionsStarted *prometheus.CounterVec
	Turns           *prometheus.CounterVec
	TurnFailures    prometheus.Counter
	TurnDuration    prometheus.Histogram
}

// NewMetrics registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_sessions_started_total",
			Help: "Scenario sessions launched, by scenario id.",
		}, []string{"scenario"}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatflow_turns_total",
			Help: "Completed turns, by result type.",
		}, []string{"result"}),
		TurnFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatflow_turn_failures_total",
			Help: "Turns that failed their session.",
		}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatflow_turn_duration_seconds",
			Help:    "Wall time of a turn, including api/llm/delay waits.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
