package visits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/observability/metrics"
	"github.com/klinikdesk/platform/pkg/logging"
)

// Recorder appends immutable audit events around state-changing visit
// operations. Events are only ever created; nothing here updates or deletes
// a record once written.
type Recorder struct {
	store      docstore.Store
	collection string
	logger     *logging.Logger
	metrics    *metrics.VisitMetrics
	now        func() time.Time
	newID      func() string
}

// NewRecorder builds a recorder writing to the given audit collection.
func NewRecorder(store docstore.Store, collection string, logger *logging.Logger, m *metrics.VisitMetrics) *Recorder {
	if store == nil {
		panic("visits: audit store cannot be nil")
	}
	if collection == "" {
		panic("visits: audit collection cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		store:      store,
		collection: collection,
		logger:     logger,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// Append durably records one audit event. The id and timestamp are assigned
// here when unset.
func (r *Recorder) Append(ctx context.Context, ev AuditEvent) error {
	if ev.ID == "" {
		ev.ID = r.newID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = r.now()
	}
	if err := r.store.Create(ctx, r.collection, ev.ID, ev); err != nil {
		return fmt.Errorf("visits: append audit event %s: %w", ev.EventType, err)
	}
	r.metrics.ObserveAuditEvent(ev.EventType)
	return nil
}

// Trail returns the audit events for a visit in causal order.
func (r *Recorder) Trail(ctx context.Context, clinicID, visitID string) ([]AuditEvent, error) {
	var events []AuditEvent
	err := r.store.List(ctx, r.collection, docstore.Query{
		Eq:      map[string]any{"clinicId": clinicID, "visitId": visitID},
		OrderBy: "occurredAt",
	}, &events)
	if err != nil {
		return nil, fmt.Errorf("visits: load audit trail: %w", err)
	}
	return events, nil
}
