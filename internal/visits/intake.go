package visits

import (
	"context"
	"fmt"

	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/identity"
)

// RegisterPatientInput is a reception intake submission. IntakeRequestID is
// generated once per form render on the caller side, so a retried submission
// carries the same token.
type RegisterPatientInput struct {
	FullName        string `json:"fullName"`
	Phone           string `json:"phone"`
	ChiefComplaint  string `json:"chiefComplaint"`
	IntakeRequestID string `json:"intakeRequestId"`
}

// RegisterPatient registers a patient and opens a queued visit.
// Reception role.
//
// For a fixed (clinic, intakeRequestId) repeated calls create at most one
// visit: a replay returns the existing visit id without touching the store.
// When a phone is given, an existing patient with the same normalized phone
// in the same clinic is reused. The idempotency lookup and the phone de-dupe
// are both read-then-write without a store-level uniqueness guarantee, so
// two first-time registrations racing on the same token or phone can each
// pass the lookup and create a duplicate. At front-desk request rates the
// window is negligible and a duplicate visit is operationally harmless.
func (s *Service) RegisterPatient(ctx context.Context, actor identity.Actor, input RegisterPatientInput) (string, error) {
	if err := identity.Require(actor, identity.RoleReception); err != nil {
		return "", err
	}

	fullName := clampString(input.FullName, maxFieldLen)
	if fullName == "" {
		return "", &ValidationError{Field: "fullName", Reason: "required"}
	}
	chiefComplaint := clampString(input.ChiefComplaint, maxFieldLen)
	if chiefComplaint == "" {
		return "", &ValidationError{Field: "chiefComplaint", Reason: "required"}
	}
	intakeRequestID := safeRequestID(input.IntakeRequestID)
	if intakeRequestID == "" {
		return "", &ValidationError{Field: "intakeRequestId", Reason: "missing or invalid idempotency token"}
	}
	phone := normalizePhone(input.Phone)

	// 1) Idempotency: a visit already opened for this token is returned
	// as-is, even when the first attempt's outcome never reached the caller.
	var existing []Visit
	err := s.store.List(ctx, s.cols.Visits, docstore.Query{
		Eq:    map[string]any{"clinicId": actor.ClinicID, "intakeRequestId": intakeRequestID},
		Limit: 1,
	}, &existing)
	if err != nil {
		return "", fmt.Errorf("visits: intake idempotency lookup: %w", err)
	}
	if len(existing) > 0 {
		s.metrics.ObserveIntake("replayed")
		s.logger.Info("intake replayed",
			"visit_id", existing[0].ID,
			"clinic_id", actor.ClinicID,
			"intake_request_id", intakeRequestID,
		)
		return existing[0].ID, nil
	}

	// 2) De-dupe by normalized phone, best-effort.
	patientID := ""
	if phone != "" {
		var patients []Patient
		err := s.store.List(ctx, s.cols.Patients, docstore.Query{
			Eq:    map[string]any{"clinicId": actor.ClinicID, "phone": phone},
			Limit: 1,
		}, &patients)
		if err != nil {
			return "", fmt.Errorf("visits: patient de-dupe lookup: %w", err)
		}
		if len(patients) > 0 {
			patientID = patients[0].ID
		}
	}

	now := s.now()

	// 3) Create the patient when no match was found.
	if patientID == "" {
		patientID = s.newID()
		patient := Patient{
			ID:           patientID,
			ClinicID:     actor.ClinicID,
			FullName:     fullName,
			Phone:        phone,
			ConsentGiven: true,
			CreatedAt:    now,
		}
		if err := s.store.Create(ctx, s.cols.Patients, patientID, patient); err != nil {
			return "", fmt.Errorf("visits: create patient: %w", err)
		}
	}

	// 4) Open the queued visit.
	visitID := s.newID()
	visit := Visit{
		ID:              visitID,
		ClinicID:        actor.ClinicID,
		PatientID:       patientID,
		Status:          StatusQueued,
		ChiefComplaint:  chiefComplaint,
		CheckInAt:       now,
		QueuedAt:        now,
		IntakeRequestID: intakeRequestID,
	}
	if err := s.store.Create(ctx, s.cols.Visits, visitID, visit); err != nil {
		return "", fmt.Errorf("visits: create visit: %w", err)
	}

	s.metrics.ObserveIntake("created")
	s.logger.Info("patient registered",
		"visit_id", visitID,
		"patient_id", patientID,
		"clinic_id", actor.ClinicID,
		"actor_id", actor.ID,
	)
	return visitID, nil
}
