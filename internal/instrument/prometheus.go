package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is an Instrumenter backed by Prometheus collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	events     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rowgraph",
			Name:      "operations_total",
			Help:      "Statements and persistence operations by outcome.",
		}, []string{"component", "action", "entity", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rowgraph",
			Name:      "operation_duration_seconds",
			Help:      "Duration of statements and persistence operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "action"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rowgraph",
			Name:      "events_total",
			Help:      "Counted events such as issued keys and rollbacks.",
		}, []string{"component", "action", "entity"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.duration, m.events} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, &metricSpan{m: m, component: component, action: action, status: "ok", start: time.Now()}
}

func (m *Metrics) EmitEvent(component, action, entity string) {
	m.events.WithLabelValues(component, action, entity).Inc()
}

type metricSpan struct {
	m         *Metrics
	component string
	action    string
	entity    string
	status    string
	start     time.Time
	ended     bool
}

func (s *metricSpan) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.m.operations.WithLabelValues(s.component, s.action, s.entity, s.status).Inc()
	s.m.duration.WithLabelValues(s.component, s.action).Observe(time.Since(s.start).Seconds())
}

func (s *metricSpan) SetStatus(status string) { s.status = status }
func (s *metricSpan) SetEntity(entity string) { s.entity = entity }
