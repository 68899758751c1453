package visits

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/pkg/logging"
)

const (
	testClinic      = "clinic-a"
	otherClinic     = "clinic-b"
	patientsCol     = "patients"
	visitsCol       = "visits"
	auditsCol       = "visit_audits"
	testReceptionID = "recep-1"
	testDoctorID    = "doc-1"
)

var (
	reception = identity.Actor{ID: testReceptionID, Role: identity.RoleReception, ClinicID: testClinic}
	doctor    = identity.Actor{ID: testDoctorID, Role: identity.RoleDoctor, ClinicID: testClinic}
	admin     = identity.Actor{ID: "admin-1", Role: identity.RoleAdmin, ClinicID: testClinic}
)

// testClock hands out strictly increasing timestamps so ordering assertions
// are deterministic.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T, store docstore.Store) *Service {
	t.Helper()
	logger := logging.Default()
	clock := newTestClock()

	recorder := NewRecorder(store, auditsCol, logger, nil)
	recorder.now = clock.Now
	seq := 0
	recorder.newID = func() string {
		seq++
		return fmt.Sprintf("audit-%d", seq)
	}

	svc := NewService(store, Collections{Patients: patientsCol, Visits: visitsCol}, recorder, logger, nil)
	svc.now = clock.Now
	idSeq := 0
	svc.newID = func() string {
		idSeq++
		return fmt.Sprintf("id-%d", idSeq)
	}
	return svc
}

func registerTestVisit(t *testing.T, svc *Service, requestID string) string {
	t.Helper()
	visitID, err := svc.RegisterPatient(context.Background(), reception, RegisterPatientInput{
		FullName:        "John Tan",
		Phone:           "012-345 6789",
		ChiefComplaint:  "fever",
		IntakeRequestID: requestID,
	})
	require.NoError(t, err)
	return visitID
}

func startTestConsult(t *testing.T, svc *Service, visitID string) {
	t.Helper()
	require.NoError(t, svc.StartConsultation(context.Background(), reception, visitID))
}

func auditTrail(t *testing.T, svc *Service, visitID string) []AuditEvent {
	t.Helper()
	events, err := svc.recorder.Trail(context.Background(), testClinic, visitID)
	require.NoError(t, err)
	return events
}
