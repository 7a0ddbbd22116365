package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/omerkatz/dentsched/libs/auth"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/archive"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/lifecycle"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

// AppointmentLister loads appointments for the staff views.
type AppointmentLister interface {
	ListRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
}

// TreatmentLister exposes the cached treatment catalog.
type TreatmentLister interface {
	List(ctx context.Context) ([]model.Treatment, error)
}

// StaffHandler serves the staff-facing surface: the active/archive views,
// lifecycle transitions and attachment uploads. All routes require a staff
// token minted by the clinic's identity service.
type StaffHandler struct {
	lister     AppointmentLister
	treatments TreatmentLister
	manager    *lifecycle.Manager
	secret     string
	logger     *slog.Logger
}

func NewStaffHandler(lister AppointmentLister, treatments TreatmentLister, manager *lifecycle.Manager, secret string, logger *slog.Logger) *StaffHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaffHandler{
		lister:     lister,
		treatments: treatments,
		manager:    manager,
		secret:     secret,
		logger:     logger,
	}
}

// RequireStaff verifies the bearer token and role before letting a staff
// request through.
func (h *StaffHandler) RequireStaff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(raw, h.secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.Role != auth.RoleStaff {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

type appointmentItem struct {
	AppointmentID string   `json:"appointment_id"`
	PatientName   string   `json:"patient_name"`
	Phone         string   `json:"phone"`
	Email         string   `json:"email,omitempty"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	TreatmentRef  string   `json:"treatment_ref,omitempty"`
	Note          string   `json:"note,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
	Status        string   `json:"status"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	ToStatus      string `json:"to_status"`
	TreatmentRef  string `json:"treatment_ref"`
}

type attachmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	AttachmentRef string `json:"attachment_ref"`
}

// List serves both staff views. view=active (default) is the operational
// queue; view=archive is the historical record. Both accept the same
// filters: from/to date bounds, status, hour, q (name or phone substring)
// and treatment.
func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	now := time.Now()
	from := now.AddDate(-1, 0, 0)
	to := now.AddDate(1, 0, 0)
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"from": "date must be YYYY-MM-DD"})
			return
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"to": "date must be YYYY-MM-DD"})
			return
		}
		to = parsed
	}

	appts, err := h.lister.ListRange(r.Context(), from, to)
	if err != nil {
		h.logger.Error("appointment list failed", "err", err)
		writeFailure(w, http.StatusInternalServerError, KindStorageError, nil)
		return
	}

	active, archived := archive.Partition(appts)
	view := active
	if q.Get("view") == "archive" {
		view = archived
	}

	hour := -1
	if raw := q.Get("hour"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 23 {
			writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"hour": "hour must be a number between 0 and 23"})
			return
		}
		hour = n
	}
	filtered := archive.Filter(view, archive.Query{
		From:      from,
		To:        to,
		Status:    model.Status(q.Get("status")),
		Hour:      hour,
		Search:    q.Get("q"),
		Treatment: q.Get("treatment"),
	})

	items := make([]appointmentItem, 0, len(filtered))
	for _, appt := range filtered {
		items = append(items, toItem(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// Transition applies a staff lifecycle action.
func (h *StaffHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"body": "invalid json body"})
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" || req.ToStatus == "" {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"body": "appointment_id and to_status required"})
		return
	}

	updated, err := h.manager.Transition(r.Context(), req.AppointmentID, model.Status(req.ToStatus), strings.TrimSpace(req.TreatmentRef))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toItem(updated))
	case errors.Is(err, lifecycle.ErrAlreadyApplied):
		// Retried action: report the current row rather than an error.
		writeJSON(w, http.StatusOK, toItem(updated))
	case errors.Is(err, lifecycle.ErrNotFound):
		writeFailure(w, http.StatusNotFound, KindNotFound, nil)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeFailure(w, http.StatusConflict, KindInvalidTransition, map[string]string{
			"to_status": "transition not allowed from current status",
		})
	default:
		h.logger.Error("transition failed", "err", err, "appointment_id", req.AppointmentID)
		writeFailure(w, http.StatusInternalServerError, KindStorageError, nil)
	}
}

// Attach appends an attachment reference after the visit took place.
func (h *StaffHandler) Attach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req attachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"body": "invalid json body"})
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.AttachmentRef = strings.TrimSpace(req.AttachmentRef)
	if req.AppointmentID == "" || req.AttachmentRef == "" {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"body": "appointment_id and attachment_ref required"})
		return
	}

	updated, err := h.manager.AppendAttachment(r.Context(), req.AppointmentID, req.AttachmentRef)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toItem(updated))
	case errors.Is(err, lifecycle.ErrNotFound):
		writeFailure(w, http.StatusNotFound, KindNotFound, nil)
	case errors.Is(err, lifecycle.ErrAttachmentNotAllowed):
		writeFailure(w, http.StatusConflict, KindInvalidTransition, map[string]string{
			"attachment_ref": "attachments allowed only once the patient has arrived",
		})
	default:
		h.logger.Error("attachment failed", "err", err, "appointment_id", req.AppointmentID)
		writeFailure(w, http.StatusInternalServerError, KindStorageError, nil)
	}
}

// Treatments returns the cached catalog for staff filter dropdowns.
func (h *StaffHandler) Treatments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	treatments, err := h.treatments.List(r.Context())
	if err != nil {
		h.logger.Error("treatment list failed", "err", err)
		writeFailure(w, http.StatusInternalServerError, KindStorageError, nil)
		return
	}

	type item struct {
		Slug  string `json:"slug"`
		Title string `json:"title"`
	}
	items := make([]item, 0, len(treatments))
	for _, t := range treatments {
		items = append(items, item{Slug: t.Slug, Title: t.Title})
	}
	writeJSON(w, http.StatusOK, map[string]any{"treatments": items})
}

func toItem(appt model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: appt.ID,
		PatientName:   appt.PatientName,
		Phone:         appt.Phone,
		Email:         appt.Email,
		Date:          appt.Date.Format("2006-01-02"),
		Time:          appt.SlotTime.String(),
		TreatmentRef:  appt.TreatmentSlug,
		Note:          appt.Note,
		Attachments:   appt.Attachments,
		Status:        string(appt.Status),
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
