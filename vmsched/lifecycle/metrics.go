package lifecycle

import (
	"time"

	"github.com/mulgadc/vmsched/vmsched/directory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultInvalid = "invalid"
)

// Metrics counts invocations and per-instance actions. A nil *Metrics is a
// no-op.
type Metrics struct {
	invocations *prometheus.CounterVec
	actions     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the handler metrics and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vmsched_invocations_total",
			Help: "Schedule invocations handled, by action and result.",
		}, []string{"action", "result"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vmsched_lifecycle_actions_total",
			Help: "Per-instance start/stop actions, by action and result.",
		}, []string{"action", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vmsched_lifecycle_action_duration_seconds",
			Help:    "Time from issuing a start/stop until its operation completed.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"action"}),
	}
}

func (m *Metrics) invocation(action directory.Action, result string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(string(action), result).Inc()
}

func (m *Metrics) action(action directory.Action, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.actions.WithLabelValues(string(action), result).Inc()
	m.duration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}
