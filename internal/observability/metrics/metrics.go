package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat flow and backend calls.
type ChatMetrics struct {
	messagesTotal   *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
	backendTotal    *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	sessionFailures *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finddoc",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Inbound chat messages by conversation step",
		}, []string{"step"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finddoc",
			Subsystem: "chat",
			Name:      "flow_outcomes_total",
			Help:      "Terminal conversation outcomes",
		}, []string{"flow", "outcome"}),
		backendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finddoc",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "FindDoc backend calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finddoc",
			Subsystem: "backend",
			Name:      "request_latency_seconds",
			Help:      "Latency of FindDoc backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finddoc",
			Subsystem: "session",
			Name:      "store_errors_total",
			Help:      "Session store failures by operation",
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.outcomesTotal, m.backendTotal, m.backendLatency, m.sessionFailures)
	return m
}

func (m *ChatMetrics) ObserveMessage(step string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(step).Inc()
}

func (m *ChatMetrics) ObserveOutcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(flow, outcome).Inc()
}

// ObserveBackendCall records one backend round trip. outcome is "ok",
// "http_error" or "transport_error".
func (m *ChatMetrics) ObserveBackendCall(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.backendTotal.WithLabelValues(operation, outcome).Inc()
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *ChatMetrics) ObserveSessionError(operation string) {
	if m == nil {
		return
	}
	m.sessionFailures.WithLabelValues(operation).Inc()
}
