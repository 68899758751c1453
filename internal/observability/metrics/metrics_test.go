package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestVisitMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewVisitMetrics(reg)

	m.ObserveIntake("created")
	m.ObserveIntake("replayed")
	m.ObserveTransition("complete_visit", "ok")
	m.ObserveAuditEvent("visit.completed")
	m.ObserveAuditConfirmFailure()

	if got := testutil.ToFloat64(m.auditConfirmFailures); got != 1 {
		t.Fatalf("expected 1 confirm failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.intakeTotal.WithLabelValues("created")); got != 1 {
		t.Fatalf("expected 1 created intake, got %v", got)
	}
}

func TestVisitMetricsNilSafe(t *testing.T) {
	var m *VisitMetrics
	m.ObserveIntake("created")
	m.ObserveTransition("start_consultation", "error")
	m.ObserveAuditEvent("visit.complete_attempt")
	m.ObserveAuditConfirmFailure()
}
