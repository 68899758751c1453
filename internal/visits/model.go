// Package visits implements the patient-visit lifecycle: idempotent intake,
// the forward-only visit state machine, and the append-only audit trail
// around completion.
package visits

import "time"

// Status is a visit lifecycle state. Transitions are forward-only:
// queued -> in_consult -> completed. A completed visit is read-only.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusInConsult Status = "in_consult"
	StatusCompleted Status = "completed"
)

// ValidStatus reports whether raw names a known visit status.
func ValidStatus(raw Status) bool {
	switch raw {
	case StatusQueued, StatusInConsult, StatusCompleted:
		return true
	}
	return false
}

// Patient is a clinic-owned patient record. At most one patient exists per
// (clinic, normalized phone) when a phone is captured; walk-ins without a
// phone get a fresh record each time.
type Patient struct {
	ID           string    `json:"id" dynamodbav:"id"`
	ClinicID     string    `json:"clinicId" dynamodbav:"clinicId"`
	FullName     string    `json:"fullName" dynamodbav:"fullName"`
	Phone        string    `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	ConsentGiven bool      `json:"consentGiven" dynamodbav:"consentGiven"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// SoapNote is the consultation note attached to a visit.
type SoapNote struct {
	Subjective string `json:"subjective" dynamodbav:"subjective"`
	Objective  string `json:"objective" dynamodbav:"objective"`
	Assessment string `json:"assessment" dynamodbav:"assessment"`
	Plan       string `json:"plan" dynamodbav:"plan"`
}

// Visit tracks one patient encounter from check-in to completion.
// IntakeRequestID is the caller-supplied idempotency token, unique per
// clinic; it deduplicates retried registration requests.
type Visit struct {
	ID              string     `json:"id" dynamodbav:"id"`
	ClinicID        string     `json:"clinicId" dynamodbav:"clinicId"`
	PatientID       string     `json:"patientId" dynamodbav:"patientId"`
	Status          Status     `json:"status" dynamodbav:"status"`
	ChiefComplaint  string     `json:"chiefComplaint" dynamodbav:"chiefComplaint"`
	CheckInAt       time.Time  `json:"checkInAt" dynamodbav:"checkInAt"`
	QueuedAt        time.Time  `json:"queuedAt" dynamodbav:"queuedAt"`
	ConsultStartAt  *time.Time `json:"consultStartAt,omitempty" dynamodbav:"consultStartAt,omitempty"`
	ConsultEndAt    *time.Time `json:"consultEndAt,omitempty" dynamodbav:"consultEndAt,omitempty"`
	SoapNote        *SoapNote  `json:"soapNote,omitempty" dynamodbav:"soapNote,omitempty"`
	SoapUpdatedAt   *time.Time `json:"soapUpdatedAt,omitempty" dynamodbav:"soapUpdatedAt,omitempty"`
	SoapUpdatedBy   string     `json:"soapUpdatedBy,omitempty" dynamodbav:"soapUpdatedBy,omitempty"`
	IntakeRequestID string     `json:"intakeRequestId" dynamodbav:"intakeRequestId"`
}

// Audit event types for the completion transition. Further audited
// transitions follow the same attempt/outcome naming.
const (
	EventCompleteAttempt = "visit.complete_attempt"
	EventCompleted       = "visit.completed"
	EventCompleteFailed  = "visit.complete_failed"
)

// AuditEvent is one immutable entry in the visit audit trail. Events are
// only ever appended; RequestID correlates all events of one logical
// operation, including a failed attempt followed by a retry.
type AuditEvent struct {
	ID          string    `json:"id" dynamodbav:"id"`
	VisitID     string    `json:"visitId" dynamodbav:"visitId"`
	ClinicID    string    `json:"clinicId" dynamodbav:"clinicId"`
	RequestID   string    `json:"requestId" dynamodbav:"requestId"`
	EventType   string    `json:"eventType" dynamodbav:"eventType"`
	ActorUserID string    `json:"actorUserId" dynamodbav:"actorUserId"`
	OccurredAt  time.Time `json:"occurredAt" dynamodbav:"occurredAt"`
	FromStatus  Status    `json:"fromStatus" dynamodbav:"fromStatus"`
	ToStatus    Status    `json:"toStatus" dynamodbav:"toStatus"`
	Error       string    `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// QueueEntry is a queued visit joined with its patient's name for display.
type QueueEntry struct {
	VisitID        string    `json:"visitId"`
	PatientID      string    `json:"patientId"`
	FullName       string    `json:"fullName"`
	ChiefComplaint string    `json:"chiefComplaint"`
	CheckInAt      time.Time `json:"checkInAt"`
	Status         Status    `json:"status"`
}

// VisitDetail is a visit with its patient record for the consultation view.
// Locked indicates the visit is completed and read-only.
type VisitDetail struct {
	Visit   Visit    `json:"visit"`
	Patient *Patient `json:"patient,omitempty"`
	Locked  bool     `json:"locked"`
}

// HistoryEntry is a past visit joined with its patient's name.
type HistoryEntry struct {
	VisitID        string     `json:"visitId"`
	PatientID      string     `json:"patientId"`
	FullName       string     `json:"fullName"`
	ChiefComplaint string     `json:"chiefComplaint"`
	Status         Status     `json:"status"`
	CheckInAt      time.Time  `json:"checkInAt"`
	ConsultStartAt *time.Time `json:"consultStartAt,omitempty"`
	ConsultEndAt   *time.Time `json:"consultEndAt,omitempty"`
}
