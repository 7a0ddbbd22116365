package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/admission"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/availability"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/validate"
)

// BookingHandler serves the public booking surface: availability lookups and
// booking submission. Responses never include other patients' details.
type BookingHandler struct {
	guard     *admission.Guard
	validator *validate.Validator
	avail     *availability.Index
	logger    *slog.Logger
}

func NewBookingHandler(guard *admission.Guard, validator *validate.Validator, avail *availability.Index, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{
		guard:     guard,
		validator: validator,
		avail:     avail,
		logger:    logger,
	}
}

type createBookingRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Note         string `json:"note"`
	TreatmentRef string `json:"treatment_ref"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type slotsResponse struct {
	Date   string   `json:"date"`
	Booked []string `json:"booked"`
	Free   []string `json:"free"`
}

// Slots returns booked and free times for a date. Times only, no PII: this
// endpoint is what the booking widget polls.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"date": "date must be YYYY-MM-DD"})
		return
	}

	booked, err := h.avail.BookedSlots(r.Context(), model.DefaultResource, date)
	if err != nil {
		h.logger.Error("booked slots lookup failed", "err", err)
		writeFailure(w, http.StatusInternalServerError, KindStorageError, nil)
		return
	}

	writeJSON(w, http.StatusOK, slotsResponse{
		Date:   date.Format("2006-01-02"),
		Booked: formatSlots(booked),
		Free:   formatSlots(availability.Free(booked)),
	})
}

// Create handles a public booking submission.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"body": "invalid json body"})
		return
	}

	norm, violations := h.validator.ValidateBooking(validate.BookingInput{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
		Note:  req.Note,
	})
	if len(violations) > 0 {
		writeFailure(w, http.StatusBadRequest, KindValidation, violations)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"date": "date must be YYYY-MM-DD"})
		return
	}
	tod, err := slots.ParseTimeOfDay(req.Time)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"time": "time must be HH:MM"})
		return
	}

	created, err := h.guard.Admit(r.Context(), admission.Candidate{
		Name:          norm.Name,
		Phone:         norm.Phone,
		Email:         norm.Email,
		Date:          date,
		Time:          tod,
		TreatmentSlug: req.TreatmentRef,
		Note:          norm.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrRateLimited):
			writeFailure(w, http.StatusTooManyRequests, KindRateLimited, nil)
		case errors.Is(err, admission.ErrSlotTaken):
			writeFailure(w, http.StatusConflict, KindSlotTaken, nil)
		case errors.Is(err, admission.ErrNotBookable):
			writeFailure(w, http.StatusBadRequest, KindValidation, map[string]string{"slot": "requested date/time is not bookable"})
		default:
			h.logger.Error("booking admission failed", "err", err)
			writeFailure(w, http.StatusInternalServerError, KindStorageError, nil)
		}
		return
	}

	writeJSON(w, http.StatusCreated, createBookingResponse{
		AppointmentID: created.ID,
		Status:        string(created.Status),
	})
}

func formatSlots(times []slots.TimeOfDay) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.String())
	}
	return out
}
