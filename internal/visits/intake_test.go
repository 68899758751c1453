package visits

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/identity"
)

func TestRegisterPatient_CreatesQueuedVisit(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	visitID := registerTestVisit(t, svc, "req-1")
	require.NotEmpty(t, visitID)

	var v Visit
	require.NoError(t, store.Get(context.Background(), visitsCol, visitID, &v))
	assert.Equal(t, StatusQueued, v.Status)
	assert.Equal(t, testClinic, v.ClinicID)
	assert.Equal(t, "fever", v.ChiefComplaint)
	assert.Equal(t, "req-1", v.IntakeRequestID)
	assert.False(t, v.CheckInAt.IsZero())
	assert.Equal(t, v.CheckInAt, v.QueuedAt)

	var p Patient
	require.NoError(t, store.Get(context.Background(), patientsCol, v.PatientID, &p))
	assert.Equal(t, "John Tan", p.FullName)
	assert.Equal(t, "0123456789", p.Phone, "phone stored normalized")
	assert.True(t, p.ConsentGiven)
	assert.Equal(t, testClinic, p.ClinicID)
}

func TestRegisterPatient_IdempotentReplay(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	first := registerTestVisit(t, svc, "req-1")
	second := registerTestVisit(t, svc, "req-1")

	assert.Equal(t, first, second, "replay returns the original visit id")

	var allVisits []Visit
	require.NoError(t, store.List(context.Background(), visitsCol, docstore.Query{}, &allVisits))
	assert.Len(t, allVisits, 1, "no second visit is created")

	var allPatients []Patient
	require.NoError(t, store.List(context.Background(), patientsCol, docstore.Query{}, &allPatients))
	assert.Len(t, allPatients, 1, "no second patient is created")
}

func TestRegisterPatient_PhoneDedupeReusesPatient(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	ctx := context.Background()
	v1, err := svc.RegisterPatient(ctx, reception, RegisterPatientInput{
		FullName: "John Tan", Phone: "+60 12-345 6789", ChiefComplaint: "fever", IntakeRequestID: "req-1",
	})
	require.NoError(t, err)
	v2, err := svc.RegisterPatient(ctx, reception, RegisterPatientInput{
		FullName: "John Tan", Phone: "+60-12-345 6789", ChiefComplaint: "cough", IntakeRequestID: "req-2",
	})
	require.NoError(t, err)

	var first, second Visit
	require.NoError(t, store.Get(ctx, visitsCol, v1, &first))
	require.NoError(t, store.Get(ctx, visitsCol, v2, &second))
	assert.Equal(t, first.PatientID, second.PatientID, "same normalized phone reuses the patient")

	var allPatients []Patient
	require.NoError(t, store.List(ctx, patientsCol, docstore.Query{}, &allPatients))
	assert.Len(t, allPatients, 1)
}

func TestRegisterPatient_NoPhoneAlwaysCreatesPatient(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	ctx := context.Background()
	for i, req := range []string{"req-1", "req-2"} {
		_, err := svc.RegisterPatient(ctx, reception, RegisterPatientInput{
			FullName: "Walk In", ChiefComplaint: "headache", IntakeRequestID: req,
		})
		require.NoError(t, err, "registration %d", i)
	}

	var allPatients []Patient
	require.NoError(t, store.List(ctx, patientsCol, docstore.Query{}, &allPatients))
	assert.Len(t, allPatients, 2, "phoneless walk-ins never de-dupe")
}

func TestRegisterPatient_ClinicsNeverSharePatients(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	ctx := context.Background()
	otherReception := identity.Actor{ID: "recep-2", Role: identity.RoleReception, ClinicID: otherClinic}

	_, err := svc.RegisterPatient(ctx, reception, RegisterPatientInput{
		FullName: "John Tan", Phone: "0123456789", ChiefComplaint: "fever", IntakeRequestID: "req-1",
	})
	require.NoError(t, err)
	_, err = svc.RegisterPatient(ctx, otherReception, RegisterPatientInput{
		FullName: "John Tan", Phone: "0123456789", ChiefComplaint: "fever", IntakeRequestID: "req-1",
	})
	require.NoError(t, err)

	var allPatients []Patient
	require.NoError(t, store.List(ctx, patientsCol, docstore.Query{}, &allPatients))
	assert.Len(t, allPatients, 2, "same phone in different clinics stays separate")
	assert.NotEqual(t, allPatients[0].ClinicID, allPatients[1].ClinicID)
}

func TestRegisterPatient_SameTokenDifferentClinics(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	ctx := context.Background()
	otherReception := identity.Actor{ID: "recep-2", Role: identity.RoleReception, ClinicID: otherClinic}

	v1, err := svc.RegisterPatient(ctx, reception, RegisterPatientInput{
		FullName: "A", ChiefComplaint: "x", IntakeRequestID: "req-1",
	})
	require.NoError(t, err)
	v2, err := svc.RegisterPatient(ctx, otherReception, RegisterPatientInput{
		FullName: "B", ChiefComplaint: "y", IntakeRequestID: "req-1",
	})
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2, "idempotency tokens are scoped per clinic")
}

func TestRegisterPatient_Validation(t *testing.T) {
	svc := newTestService(t, docstore.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterPatientInput
		field string
	}{
		{"missing full name", RegisterPatientInput{ChiefComplaint: "fever", IntakeRequestID: "req-1"}, "fullName"},
		{"blank full name", RegisterPatientInput{FullName: "   ", ChiefComplaint: "fever", IntakeRequestID: "req-1"}, "fullName"},
		{"missing complaint", RegisterPatientInput{FullName: "John", IntakeRequestID: "req-1"}, "chiefComplaint"},
		{"missing token", RegisterPatientInput{FullName: "John", ChiefComplaint: "fever"}, "intakeRequestId"},
		{"token all invalid chars", RegisterPatientInput{FullName: "John", ChiefComplaint: "fever", IntakeRequestID: "%%%"}, "intakeRequestId"},
		{"token leading separator", RegisterPatientInput{FullName: "John", ChiefComplaint: "fever", IntakeRequestID: "-req-1"}, "intakeRequestId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterPatient(ctx, reception, tt.input)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRegisterPatient_RequiresReceptionRole(t *testing.T) {
	svc := newTestService(t, docstore.NewMemoryStore())

	// No role below reception exists, so permission failures surface only
	// through an unsatisfied hierarchy, e.g. an empty role.
	stranger := identity.Actor{ID: "u-x", Role: "", ClinicID: testClinic}
	_, err := svc.RegisterPatient(context.Background(), stranger, RegisterPatientInput{
		FullName: "John", ChiefComplaint: "fever", IntakeRequestID: "req-1",
	})
	assert.True(t, errors.Is(err, identity.ErrInsufficientPermission))
}

func TestRegisterPatient_DoctorAndAdminSatisfyReception(t *testing.T) {
	svc := newTestService(t, docstore.NewMemoryStore())
	ctx := context.Background()

	for i, actor := range []identity.Actor{doctor, admin} {
		_, err := svc.RegisterPatient(ctx, actor, RegisterPatientInput{
			FullName: "John", ChiefComplaint: "fever", IntakeRequestID: "req-" + string(rune('a'+i)),
		})
		assert.NoError(t, err, "%s should satisfy reception", actor.Role)
	}
}

func TestRegisterPatient_ClampsLongFields(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}

	visitID, err := svc.RegisterPatient(context.Background(), reception, RegisterPatientInput{
		FullName: string(long), ChiefComplaint: string(long), IntakeRequestID: "req-1",
	})
	require.NoError(t, err)

	var v Visit
	require.NoError(t, store.Get(context.Background(), visitsCol, visitID, &v))
	assert.Len(t, v.ChiefComplaint, 255)

	var p Patient
	require.NoError(t, store.Get(context.Background(), patientsCol, v.PatientID, &p))
	assert.Len(t, p.FullName, 255)
}

func TestRegisterPatient_ClampCountsCharactersNotBytes(t *testing.T) {
	store := docstore.NewMemoryStore()
	svc := newTestService(t, store)

	// 100 CJK characters are 300 bytes but well under the 255-character cap.
	complaint := strings.Repeat("头", 100)
	// A name that lands exactly at the cap with a multi-byte final character.
	name := strings.Repeat("a", 254) + "é"

	visitID, err := svc.RegisterPatient(context.Background(), reception, RegisterPatientInput{
		FullName: name, Phone: "012-000 0001", ChiefComplaint: complaint, IntakeRequestID: "req-utf8",
	})
	require.NoError(t, err)

	var v Visit
	require.NoError(t, store.Get(context.Background(), visitsCol, visitID, &v))
	assert.Equal(t, complaint, v.ChiefComplaint)

	var p Patient
	require.NoError(t, store.Get(context.Background(), patientsCol, v.PatientID, &p))
	assert.Equal(t, name, p.FullName)
	assert.True(t, utf8.ValidString(p.FullName))

	// Over the cap, the clamp removes whole characters.
	longVisitID, err := svc.RegisterPatient(context.Background(), reception, RegisterPatientInput{
		FullName: "Tan", Phone: "012-000 0002",
		ChiefComplaint: strings.Repeat("痛", 300), IntakeRequestID: "req-utf8-long",
	})
	require.NoError(t, err)
	require.NoError(t, store.Get(context.Background(), visitsCol, longVisitID, &v))
	assert.Equal(t, strings.Repeat("痛", 255), v.ChiefComplaint)
}
