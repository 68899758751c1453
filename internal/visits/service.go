package visits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/internal/observability/metrics"
	"github.com/klinikdesk/platform/pkg/logging"
)

const (
	queueLimit        = 20
	historyLimitDef   = 50
	historyLimitMax   = 200
	errTruncateLength = 500
)

// Collections names the patient and visit collections in the document store.
type Collections struct {
	Patients string
	Visits   string
}

// Service coordinates intake, the visit state machine, and the audit
// recorder. Every operation takes the caller-bound actor and re-reads the
// current visit immediately before mutating it; none of the read-check-write
// sequences are transactional, which is accepted at front-desk concurrency.
type Service struct {
	store    docstore.Store
	cols     Collections
	recorder *Recorder
	logger   *logging.Logger
	metrics  *metrics.VisitMetrics
	now      func() time.Time
	newID    func() string
}

// NewService wires the visit service.
func NewService(store docstore.Store, cols Collections, recorder *Recorder, logger *logging.Logger, m *metrics.VisitMetrics) *Service {
	if store == nil {
		panic("visits: store cannot be nil")
	}
	if cols.Patients == "" || cols.Visits == "" {
		panic("visits: collection names cannot be empty")
	}
	if recorder == nil {
		panic("visits: recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:    store,
		cols:     cols,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// loadVisitScoped reads the current visit and enforces clinic isolation
// before any further checks.
func (s *Service) loadVisitScoped(ctx context.Context, actor identity.Actor, visitID string) (Visit, error) {
	var v Visit
	err := s.store.Get(ctx, s.cols.Visits, visitID, &v)
	if errors.Is(err, docstore.ErrNotFound) {
		return Visit{}, fmt.Errorf("%w: visit %s", ErrNotFound, visitID)
	}
	if err != nil {
		return Visit{}, fmt.Errorf("visits: load visit %s: %w", visitID, err)
	}
	if v.ClinicID != actor.ClinicID {
		return Visit{}, ErrClinicMismatch
	}
	return v, nil
}

// StartConsultation moves a queued visit into consultation. Reception role.
func (s *Service) StartConsultation(ctx context.Context, actor identity.Actor, visitID string) error {
	if err := identity.Require(actor, identity.RoleReception); err != nil {
		return err
	}
	if visitID == "" {
		return &ValidationError{Field: "visitId", Reason: "required"}
	}

	v, err := s.loadVisitScoped(ctx, actor, visitID)
	if err != nil {
		return err
	}
	if v.Status != StatusQueued {
		s.metrics.ObserveTransition("start_consultation", "invalid")
		return &InvalidTransitionError{Op: "start_consultation", From: v.Status}
	}

	now := s.now()
	err = s.store.Update(ctx, s.cols.Visits, visitID, map[string]any{
		"status":         StatusInConsult,
		"consultStartAt": now,
	})
	if err != nil {
		s.metrics.ObserveTransition("start_consultation", "error")
		return fmt.Errorf("visits: start consultation for %s: %w", visitID, err)
	}

	s.metrics.ObserveTransition("start_consultation", "ok")
	s.logger.Info("consultation started",
		"visit_id", visitID,
		"clinic_id", v.ClinicID,
		"actor_id", actor.ID,
	)
	return nil
}

// LoadVisit returns a visit with its patient record. Doctor role.
func (s *Service) LoadVisit(ctx context.Context, actor identity.Actor, visitID string) (VisitDetail, error) {
	if err := identity.Require(actor, identity.RoleDoctor); err != nil {
		return VisitDetail{}, err
	}
	if visitID == "" {
		return VisitDetail{}, &ValidationError{Field: "visitId", Reason: "required"}
	}

	v, err := s.loadVisitScoped(ctx, actor, visitID)
	if err != nil {
		return VisitDetail{}, err
	}

	detail := VisitDetail{Visit: v, Locked: v.Status == StatusCompleted}
	if v.PatientID != "" {
		var p Patient
		err := s.store.Get(ctx, s.cols.Patients, v.PatientID, &p)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			s.logger.Warn("visit references missing patient", "visit_id", visitID, "patient_id", v.PatientID)
		case err != nil:
			return VisitDetail{}, fmt.Errorf("visits: load patient %s: %w", v.PatientID, err)
		case p.ClinicID != actor.ClinicID:
			s.logger.Warn("visit references cross-clinic patient", "visit_id", visitID, "patient_id", v.PatientID)
		default:
			detail.Patient = &p
		}
	}
	return detail, nil
}

// SaveSoapNote updates the consultation note on an in-consult visit.
// Doctor role. The visit status is unchanged; a completed visit is read-only.
func (s *Service) SaveSoapNote(ctx context.Context, actor identity.Actor, visitID string, note SoapNote) error {
	if err := identity.Require(actor, identity.RoleDoctor); err != nil {
		return err
	}
	if visitID == "" {
		return &ValidationError{Field: "visitId", Reason: "required"}
	}

	v, err := s.loadVisitScoped(ctx, actor, visitID)
	if err != nil {
		return err
	}
	if v.Status != StatusInConsult {
		s.metrics.ObserveTransition("save_soap_note", "invalid")
		return &InvalidTransitionError{Op: "save_soap_note", From: v.Status}
	}

	note.Subjective = clampString(note.Subjective, maxFieldLen*8)
	note.Objective = clampString(note.Objective, maxFieldLen*8)
	note.Assessment = clampString(note.Assessment, maxFieldLen*8)
	note.Plan = clampString(note.Plan, maxFieldLen*8)

	now := s.now()
	err = s.store.Update(ctx, s.cols.Visits, visitID, map[string]any{
		"soapNote":      note,
		"soapUpdatedAt": now,
		"soapUpdatedBy": actor.ID,
	})
	if err != nil {
		s.metrics.ObserveTransition("save_soap_note", "error")
		return fmt.Errorf("visits: save soap note for %s: %w", visitID, err)
	}

	s.metrics.ObserveTransition("save_soap_note", "ok")
	return nil
}

// CompleteVisit finishes an in-consult visit under the audit-first protocol:
// record intent, mutate, record outcome. Doctor role. requestID correlates
// the audit events of this logical operation and any retry of it.
func (s *Service) CompleteVisit(ctx context.Context, actor identity.Actor, visitID, requestID string) error {
	if err := identity.Require(actor, identity.RoleDoctor); err != nil {
		return err
	}
	if visitID == "" {
		return &ValidationError{Field: "visitId", Reason: "required"}
	}
	if requestID == "" {
		return &ValidationError{Field: "requestId", Reason: "required"}
	}

	// Preconditions run before any audit write: a rejected call leaves no
	// trace of intent because no mutation was ever going to happen.
	v, err := s.loadVisitScoped(ctx, actor, visitID)
	if err != nil {
		return err
	}
	if v.Status != StatusInConsult {
		s.metrics.ObserveTransition("complete_visit", "invalid")
		return &InvalidTransitionError{Op: "complete_visit", From: v.Status}
	}

	event := AuditEvent{
		VisitID:     visitID,
		ClinicID:    v.ClinicID,
		RequestID:   requestID,
		ActorUserID: actor.ID,
		FromStatus:  v.Status,
		ToStatus:    StatusCompleted,
	}

	// Phase 1: durably record intent. A crash between this write and the
	// mutation still leaves a trace.
	event.EventType = EventCompleteAttempt
	if err := s.recorder.Append(ctx, event); err != nil {
		s.metrics.ObserveTransition("complete_visit", "error")
		return err
	}

	// Phase 2: apply the transition.
	now := s.now()
	err = s.store.Update(ctx, s.cols.Visits, visitID, map[string]any{
		"status":       StatusCompleted,
		"consultEndAt": now,
	})
	if err != nil {
		event.EventType = EventCompleteFailed
		event.Error = truncateError(err, errTruncateLength)
		if auditErr := s.recorder.Append(ctx, event); auditErr != nil {
			s.logger.Error("failed to record complete_failed audit event",
				"visit_id", visitID,
				"request_id", requestID,
				"error", auditErr,
			)
		}
		s.metrics.ObserveTransition("complete_visit", "error")
		return fmt.Errorf("visits: complete visit %s: %w", visitID, err)
	}

	// Phase 3: confirm. The transition already succeeded, so a failure here
	// is an observability gap, not a transaction failure: log it, count it,
	// report success.
	event.EventType = EventCompleted
	event.Error = ""
	if err := s.recorder.Append(ctx, event); err != nil {
		s.logger.Error("visit completed but confirm audit event failed",
			"visit_id", visitID,
			"request_id", requestID,
			"error", err,
		)
		s.metrics.ObserveAuditConfirmFailure()
	}

	s.metrics.ObserveTransition("complete_visit", "ok")
	s.logger.Info("visit completed",
		"visit_id", visitID,
		"clinic_id", v.ClinicID,
		"actor_id", actor.ID,
		"request_id", requestID,
	)
	return nil
}

// ListQueuedVisits returns the clinic's queue, newest check-in first, joined
// with patient names. Reception role.
func (s *Service) ListQueuedVisits(ctx context.Context, actor identity.Actor) ([]QueueEntry, error) {
	if err := identity.Require(actor, identity.RoleReception); err != nil {
		return nil, err
	}

	var queued []Visit
	err := s.store.List(ctx, s.cols.Visits, docstore.Query{
		Eq:         map[string]any{"clinicId": actor.ClinicID, "status": StatusQueued},
		OrderBy:    "checkInAt",
		Descending: true,
		Limit:      queueLimit,
	}, &queued)
	if err != nil {
		return nil, fmt.Errorf("visits: list queue: %w", err)
	}

	names := s.patientNames(ctx, actor.ClinicID, queued)
	entries := make([]QueueEntry, 0, len(queued))
	for _, v := range queued {
		entries = append(entries, QueueEntry{
			VisitID:        v.ID,
			PatientID:      v.PatientID,
			FullName:       names[v.PatientID],
			ChiefComplaint: v.ChiefComplaint,
			CheckInAt:      v.CheckInAt,
			Status:         v.Status,
		})
	}
	return entries, nil
}

// HistoryFilter narrows ListVisitHistory. Zero values mean completed visits,
// any patient, default limit.
type HistoryFilter struct {
	PatientID string
	Status    Status
	Limit     int
}

// ListVisitHistory returns past visits for the clinic, newest first.
// Doctor role.
func (s *Service) ListVisitHistory(ctx context.Context, actor identity.Actor, filter HistoryFilter) ([]HistoryEntry, error) {
	if err := identity.Require(actor, identity.RoleDoctor); err != nil {
		return nil, err
	}

	status := filter.Status
	if status == "" {
		status = StatusCompleted
	}
	if !ValidStatus(status) {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = historyLimitDef
	}
	if limit > historyLimitMax {
		limit = historyLimitMax
	}

	eq := map[string]any{"clinicId": actor.ClinicID, "status": status}
	if filter.PatientID != "" {
		eq["patientId"] = filter.PatientID
	}

	var matched []Visit
	err := s.store.List(ctx, s.cols.Visits, docstore.Query{
		Eq:         eq,
		OrderBy:    "checkInAt",
		Descending: true,
		Limit:      limit,
	}, &matched)
	if err != nil {
		return nil, fmt.Errorf("visits: list history: %w", err)
	}

	names := s.patientNames(ctx, actor.ClinicID, matched)
	entries := make([]HistoryEntry, 0, len(matched))
	for _, v := range matched {
		entries = append(entries, HistoryEntry{
			VisitID:        v.ID,
			PatientID:      v.PatientID,
			FullName:       names[v.PatientID],
			ChiefComplaint: v.ChiefComplaint,
			Status:         v.Status,
			CheckInAt:      v.CheckInAt,
			ConsultStartAt: v.ConsultStartAt,
			ConsultEndAt:   v.ConsultEndAt,
		})
	}
	return entries, nil
}

// VisitAuditTrail returns the audit events for one visit in causal order.
// Admin role.
func (s *Service) VisitAuditTrail(ctx context.Context, actor identity.Actor, visitID string) ([]AuditEvent, error) {
	if err := identity.Require(actor, identity.RoleAdmin); err != nil {
		return nil, err
	}
	if visitID == "" {
		return nil, &ValidationError{Field: "visitId", Reason: "required"}
	}
	if _, err := s.loadVisitScoped(ctx, actor, visitID); err != nil {
		return nil, err
	}
	return s.recorder.Trail(ctx, actor.ClinicID, visitID)
}

// patientNames resolves patient display names for a batch of visits.
// Missing or cross-clinic patients show as "Unknown patient".
func (s *Service) patientNames(ctx context.Context, clinicID string, vs []Visit) map[string]string {
	names := make(map[string]string)
	for _, v := range vs {
		if v.PatientID == "" {
			continue
		}
		if _, done := names[v.PatientID]; done {
			continue
		}
		names[v.PatientID] = "Unknown patient"

		var p Patient
		err := s.store.Get(ctx, s.cols.Patients, v.PatientID, &p)
		if err != nil {
			if !errors.Is(err, docstore.ErrNotFound) {
				s.logger.Warn("patient lookup failed", "patient_id", v.PatientID, "error", err)
			}
			continue
		}
		if p.ClinicID == clinicID && p.FullName != "" {
			names[v.PatientID] = p.FullName
		}
	}
	return names
}
