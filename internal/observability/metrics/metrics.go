package metrics

import "github.com/prometheus/client_golang/prometheus"

// VisitMetrics exposes counters for the visit lifecycle and its audit trail.
type VisitMetrics struct {
	intakeTotal          *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	auditEventsTotal     *prometheus.CounterVec
	auditConfirmFailures prometheus.Counter
}

func NewVisitMetrics(reg prometheus.Registerer) *VisitMetrics {
	m := &VisitMetrics{
		intakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikdesk",
			Subsystem: "visits",
			Name:      "intake_total",
			Help:      "Total patient registrations by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikdesk",
			Subsystem: "visits",
			Name:      "transitions_total",
			Help:      "Total visit state transitions by operation and result",
		}, []string{"operation", "status"}),
		auditEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "klinikdesk",
			Subsystem: "visits",
			Name:      "audit_events_total",
			Help:      "Total audit events appended by type",
		}, []string{"event_type"}),
		auditConfirmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "klinikdesk",
			Subsystem: "visits",
			Name:      "audit_confirm_failures_total",
			Help:      "Confirm-phase audit appends that failed after a successful transition",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.intakeTotal, m.transitionsTotal, m.auditEventsTotal, m.auditConfirmFailures)
	return m
}

func (m *VisitMetrics) ObserveIntake(outcome string) {
	if m == nil {
		return
	}
	m.intakeTotal.WithLabelValues(outcome).Inc()
}

func (m *VisitMetrics) ObserveTransition(operation, status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(operation, status).Inc()
}

func (m *VisitMetrics) ObserveAuditEvent(eventType string) {
	if m == nil {
		return
	}
	m.auditEventsTotal.WithLabelValues(eventType).Inc()
}

func (m *VisitMetrics) ObserveAuditConfirmFailure() {
	if m == nil {
		return
	}
	m.auditConfirmFailures.Inc()
}
