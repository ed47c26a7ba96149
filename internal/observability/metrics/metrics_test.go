package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok {
			if want != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)
	m.ObserveMessage("await_email")
	m.ObserveMessage("await_email")
	m.ObserveOutcome("book", "booked")
	m.ObserveBackendCall("login", "ok", 0.2)
	m.ObserveBackendCall("login", "http_error", 0.1)
	m.ObserveSessionError("load")

	if got := counterValue(t, reg, "finddoc_chat_messages_total", map[string]string{"step": "await_email"}); got != 2 {
		t.Fatalf("messages_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "finddoc_backend_requests_total", map[string]string{"operation": "login", "outcome": "http_error"}); got != 1 {
		t.Fatalf("backend requests_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "finddoc_chat_flow_outcomes_total", map[string]string{"flow": "book", "outcome": "booked"}); got != 1 {
		t.Fatalf("flow_outcomes_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "finddoc_session_store_errors_total", map[string]string{"operation": "load"}); got != 1 {
		t.Fatalf("store_errors_total = %v, want 1", got)
	}
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveMessage("step")
	m.ObserveOutcome("book", "failed")
	m.ObserveBackendCall("login", "ok", 0.1)
	m.ObserveSessionError("save")
}
