package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/internal/tenancy"
	"github.com/klinikdesk/platform/internal/visits"
	"github.com/klinikdesk/platform/pkg/logging"
)

// requestActor extracts the authenticated actor from the request context.
// When the auth middleware also bound a clinic scope, the actor must belong
// to that clinic.
func requestActor(r *http.Request) (identity.Actor, error) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		return identity.Actor{}, identity.ErrUnauthenticated
	}
	if clinicID, ok := tenancy.ClinicIDFromContext(r.Context()); ok && clinicID != actor.ClinicID {
		return identity.Actor{}, visits.ErrClinicMismatch
	}
	return actor, nil
}

// VisitsHandler exposes the visit lifecycle over HTTP. Every route expects
// the auth middleware to have bound an actor to the request context.
type VisitsHandler struct {
	service *visits.Service
	logger  *logging.Logger
}

// NewVisitsHandler creates a new visits handler.
func NewVisitsHandler(service *visits.Service, logger *logging.Logger) *VisitsHandler {
	if service == nil {
		panic("handlers: visits service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VisitsHandler{service: service, logger: logger}
}

// RegisterVisitRequest is the intake submission body.
type RegisterVisitRequest struct {
	FullName        string `json:"fullName"`
	Phone           string `json:"phone"`
	ChiefComplaint  string `json:"chiefComplaint"`
	IntakeRequestID string `json:"intakeRequestId"`
}

// RegisterVisitResponse carries the id of the created (or replayed) visit.
type RegisterVisitResponse struct {
	VisitID string `json:"visitId"`
}

// QueueResponse lists the clinic's waiting room.
type QueueResponse struct {
	Visits []visits.QueueEntry `json:"visits"`
}

// HistoryResponse lists past visits.
type HistoryResponse struct {
	Visits []visits.HistoryEntry `json:"visits"`
}

// SoapNoteRequest is the consultation note body.
type SoapNoteRequest struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// CompleteVisitRequest optionally carries the request id in the body when
// the X-Request-ID header is absent.
type CompleteVisitRequest struct {
	RequestID string `json:"requestId"`
}

// AuditTrailResponse lists a visit's audit events in causal order.
type AuditTrailResponse struct {
	Events []visits.AuditEvent `json:"events"`
}

// Register handles POST /api/visits.
func (h *VisitsHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req RegisterVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.IntakeRequestID == "" {
		req.IntakeRequestID = r.Header.Get("X-Request-ID")
	}

	visitID, err := h.service.RegisterPatient(r.Context(), actor, visits.RegisterPatientInput{
		FullName:        req.FullName,
		Phone:           req.Phone,
		ChiefComplaint:  req.ChiefComplaint,
		IntakeRequestID: req.IntakeRequestID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterVisitResponse{VisitID: visitID})
}

// Queue handles GET /api/visits/queue.
func (h *VisitsHandler) Queue(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entries, err := h.service.ListQueuedVisits(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{Visits: entries})
}

// History handles GET /api/visits/history.
func (h *VisitsHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	filter := visits.HistoryFilter{
		PatientID: r.URL.Query().Get("patientId"),
		Status:    visits.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.service.ListVisitHistory(r.Context(), actor, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Visits: entries})
}

// Get handles GET /api/visits/{visitID}.
func (h *VisitsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	detail, err := h.service.LoadVisit(r.Context(), actor, chi.URLParam(r, "visitID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Start handles POST /api/visits/{visitID}/start.
func (h *VisitsHandler) Start(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if err := h.service.StartConsultation(r.Context(), actor, chi.URLParam(r, "visitID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(visits.StatusInConsult)})
}

// SaveSoap handles PUT /api/visits/{visitID}/soap.
func (h *VisitsHandler) SaveSoap(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var req SoapNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	note := visits.SoapNote{
		Subjective: req.Subjective,
		Objective:  req.Objective,
		Assessment: req.Assessment,
		Plan:       req.Plan,
	}
	if err := h.service.SaveSoapNote(r.Context(), actor, chi.URLParam(r, "visitID"), note); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// Complete handles POST /api/visits/{visitID}/complete.
func (h *VisitsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if r.Body != nil && r.ContentLength != 0 {
		var req CompleteVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
			return
		}
		if req.RequestID != "" {
			requestID = req.RequestID
		}
	}

	if err := h.service.CompleteVisit(r.Context(), actor, chi.URLParam(r, "visitID"), requestID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(visits.StatusCompleted)})
}

// Audit handles GET /api/visits/{visitID}/audit.
func (h *VisitsHandler) Audit(w http.ResponseWriter, r *http.Request) {
	actor, err := requestActor(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	events, err := h.service.VisitAuditTrail(r.Context(), actor, chi.URLParam(r, "visitID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditTrailResponse{Events: events})
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *VisitsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *visits.ValidationError
	var terr *visits.InvalidTransitionError

	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, identity.ErrNoMembership):
		writeError(w, http.StatusForbidden, "no_membership", "no clinic membership")
	case errors.Is(err, identity.ErrInsufficientPermission):
		writeError(w, http.StatusForbidden, "insufficient_permission", "role does not permit this operation")
	case errors.Is(err, visits.ErrClinicMismatch):
		writeError(w, http.StatusForbidden, "clinic_mismatch", "visit belongs to another clinic")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, visits.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "visit not found")
	case errors.As(err, &terr):
		message := "invalid transition from " + string(terr.From)
		if terr.AlreadyCompleted() {
			message = "visit already completed"
		}
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": message,
			"code":  "invalid_transition",
			"from":  string(terr.From),
		})
	default:
		h.logger.Error("visit operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
