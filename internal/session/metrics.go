package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricSessionsCreated = "mapmeasure_sessions_created_total"
	MetricSessionsExpired = "mapmeasure_sessions_expired_total"
	MetricSessionsActive  = "mapmeasure_sessions_active"
	MetricTransitions     = "mapmeasure_transitions_total"
	MetricPointsCreated   = "mapmeasure_points_created_total"
	MetricAreasCreated    = "mapmeasure_areas_created_total"
)

// Metrics contains Prometheus metrics for the measurement workflow.
// All operations are thread-safe.
type Metrics struct {
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter
	sessionsActive  prometheus.Gauge
	transitions     *prometheus.CounterVec
	pointsCreated   prometheus.Counter
	areasCreated    prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSessionsCreated,
			Help: "Total number of measurement sessions created",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSessionsExpired,
			Help: "Total number of sessions removed by the idle TTL sweeper",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSessionsActive,
			Help: "Number of sessions currently held in memory",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTransitions,
				Help: "State machine inputs by input kind and outcome",
			},
			[]string{"input", "result"},
		),
		pointsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPointsCreated,
			Help: "Total number of points confirmed into sessions",
		}),
		areasCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricAreasCreated,
			Help: "Total number of areas confirmed into sessions",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.sessionsCreated,
		m.sessionsExpired,
		m.sessionsActive,
		m.transitions,
		m.pointsCreated,
		m.areasCreated,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveSessionCreated records a new session.
func (m *Metrics) ObserveSessionCreated(active int) {
	m.sessionsCreated.Inc()
	m.sessionsActive.Set(float64(active))
}

// ObserveSessionRemoved records a deleted or expired session.
func (m *Metrics) ObserveSessionRemoved(active int, expired bool) {
	if expired {
		m.sessionsExpired.Inc()
	}
	m.sessionsActive.Set(float64(active))
}

// ObserveTransition records one state machine input and whether it was
// accepted.
func (m *Metrics) ObserveTransition(input string, accepted bool) {
	result := "ok"
	if !accepted {
		result = "rejected"
	}
	m.transitions.WithLabelValues(input, result).Inc()
}

// ObservePointCreated records a confirmed point.
func (m *Metrics) ObservePointCreated() {
	m.pointsCreated.Inc()
}

// ObserveAreaCreated records a confirmed area.
func (m *Metrics) ObserveAreaCreated() {
	m.areasCreated.Inc()
}
