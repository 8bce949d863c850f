package automation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wedding-automation/internal/action"
	"wedding-automation/internal/models"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	transitions    *prometheus.CounterVec
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	conflicts      prometheus.Counter
	sweepDuration  prometheus.Histogram
	sweepDue       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_execution_transitions_total",
				Help: "Execution record transitions by target status",
			},
			[]string{"status"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_actions_total",
				Help: "Executed actions by kind and result code",
			},
			[]string{"action", "code"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automation_action_duration_seconds",
				Help:    "Time spent performing an action",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"action"},
		),
		conflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "automation_execution_conflicts_total",
				Help: "Execution creations absorbed because the pair already had a record",
			},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "automation_sweep_duration_seconds",
				Help:    "Duration of a sweep run",
				Buckets: prometheus.DefBuckets,
			},
		),
		sweepDue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "automation_sweep_due_records",
				Help: "Due PENDING records picked up by the last sweep",
			},
		),
	}

	reg.MustRegister(m.transitions, m.actions, m.actionDuration, m.conflicts, m.sweepDuration, m.sweepDue)
	return m
}

func (m *Metrics) transition(to models.ExecutionStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) action(kind models.ActionKind, res action.Result, took time.Duration) {
	if m == nil {
		return
	}
	code := string(res.Code)
	if res.Success {
		code = "OK"
	}
	m.actions.WithLabelValues(string(kind), code).Inc()
	m.actionDuration.WithLabelValues(string(kind)).Observe(took.Seconds())
}

func (m *Metrics) conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *Metrics) sweep(due int, took time.Duration) {
	if m == nil {
		return
	}
	m.sweepDue.Set(float64(due))
	m.sweepDuration.Observe(took.Seconds())
}
