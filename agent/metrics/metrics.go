// Package metrics exposes Prometheus collectors for the bus, router and coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const namespace = "chative"

type Metrics struct {
	published       *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlerErrors   *prometheus.CounterVec
	routeDecisions  *prometheus.CounterVec
	subtasks        *prometheus.CounterVec
	fanoutDuration  prometheus.Histogram
}

// New registers every collector on reg. sessions, if non-nil, backs the
// active sessions gauge.
func New(reg prometheus.Registerer, sessions func() int) (*Metrics, error) {
	m := &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_published_total",
				Help:      "Messages published on the bus",
			},
			[]string{"kind", "topic_type"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bus_delivered_total",
				Help:      "Messages queued into an agent mailbox",
			},
			[]string{"agent_type", "kind", "mode"}, // mode: publish, send
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_duration_seconds",
				Help:      "Agent handler duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"agent_type", "kind"},
		),
		handlerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_errors_total",
				Help:      "Agent handler invocations that returned an error",
			},
			[]string{"agent_type", "kind"},
		),
		routeDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "router_decisions_total",
				Help:      "Router outcomes per user message",
			},
			[]string{"decision"}, // greeting, noop, single, multi, handoff_limit, complete
		),
		subtasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fanout_subtasks_total",
				Help:      "Coordinator subtasks by outcome",
			},
			[]string{"agent_type", "status"}, // status: success, error
		),
		fanoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fanout_duration_seconds",
				Help:      "Time from plan receipt to composed answer",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
	}

	collectors := []prometheus.Collector{
		m.published,
		m.delivered,
		m.handlerDuration,
		m.handlerErrors,
		m.routeDecisions,
		m.subtasks,
		m.fanoutDuration,
	}
	if sessions != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Sessions with router history in memory",
			},
			func() float64 { return float64(sessions()) },
		))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) MessagePublished(kind contractx.Kind, topicType contractx.AgentType) {
	m.published.WithLabelValues(string(kind), string(topicType)).Inc()
}

func (m *Metrics) MessageDelivered(agentType contractx.AgentType, kind contractx.Kind, direct bool) {
	mode := "publish"
	if direct {
		mode = "send"
	}
	m.delivered.WithLabelValues(string(agentType), string(kind), mode).Inc()
}

func (m *Metrics) HandlerFinished(agentType contractx.AgentType, kind contractx.Kind, took time.Duration, err error) {
	m.handlerDuration.WithLabelValues(string(agentType), string(kind)).Observe(took.Seconds())
	if err != nil {
		m.handlerErrors.WithLabelValues(string(agentType), string(kind)).Inc()
	}
}

func (m *Metrics) RouteDecided(decision string) {
	m.routeDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) SubtaskFinished(agentType contractx.AgentType, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.subtasks.WithLabelValues(string(agentType), status).Inc()
}

func (m *Metrics) FanoutFinished(took time.Duration) {
	m.fanoutDuration.Observe(took.Seconds())
}
