package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/admission"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/availability"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/outbox"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/validate"
)

type fakeAdmissionStore struct {
	calls int
	err   error
}

func (f *fakeAdmissionStore) CreatePending(ctx context.Context, appt *model.Appointment, evt outbox.Event) (model.Appointment, error) {
	f.calls++
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	created := *appt
	created.ID = "appt-1"
	return created, nil
}

type fakeLimiter struct {
	allowed bool
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return f.allowed, nil
}

type fakeAvailStore struct {
	booked []slots.TimeOfDay
	calls  int
}

func (f *fakeAvailStore) BookedSlots(ctx context.Context, resource string, date time.Time) ([]slots.TimeOfDay, error) {
	f.calls++
	return f.booked, nil
}

func newBookingHandler(store *fakeAdmissionStore, limiter *fakeLimiter) *BookingHandler {
	avail := availability.NewIndex(&fakeAvailStore{}, nil, 0, nil)
	guard := admission.NewGuard(store, limiter, avail, time.UTC, nil)
	return NewBookingHandler(guard, validate.New(), avail, nil)
}

// nextOpenDay returns the first upcoming clinic day, so booking requests in
// these tests are always inside the template.
func nextOpenDay(t *testing.T) string {
	t.Helper()
	d := time.Now().UTC().AddDate(0, 0, 1)
	for i := 0; i < 7; i++ {
		if slots.IsOpenWeekday(d.Weekday()) {
			return d.Format("2006-01-02")
		}
		d = d.AddDate(0, 0, 1)
	}
	t.Fatal("no open weekday found")
	return ""
}

// nextClosedDay returns the first upcoming day the clinic is closed.
func nextClosedDay(t *testing.T) string {
	t.Helper()
	d := time.Now().UTC().AddDate(0, 0, 1)
	for i := 0; i < 7; i++ {
		if !slots.IsOpenWeekday(d.Weekday()) {
			return d.Format("2006-01-02")
		}
		d = d.AddDate(0, 0, 1)
	}
	t.Fatal("no closed weekday found")
	return ""
}

func postBooking(t *testing.T, h *BookingHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var body struct {
		Kind    string         `json:"kind"`
		Details map[string]any `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failure body: %v", err)
	}
	return body.Kind, body.Details
}

func TestCreateBookingSuccess(t *testing.T) {
	store := &fakeAdmissionStore{}
	h := newBookingHandler(store, &fakeLimiter{allowed: true})

	rec := postBooking(t, h, `{"name":"Dana Levi","phone":"050-1234567","date":"`+nextOpenDay(t)+`","time":"10:00"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp createBookingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AppointmentID != "appt-1" {
		t.Fatalf("appointment_id = %q", resp.AppointmentID)
	}
	if resp.Status != string(model.StatusPending) {
		t.Fatalf("status = %q, want pending", resp.Status)
	}
	if store.calls != 1 {
		t.Fatalf("store calls = %d, want 1", store.calls)
	}
}

func TestCreateBookingInvalidPhone(t *testing.T) {
	store := &fakeAdmissionStore{}
	h := newBookingHandler(store, &fakeLimiter{allowed: true})

	rec := postBooking(t, h, `{"name":"Dana Levi","phone":"12345","date":"`+nextOpenDay(t)+`","time":"10:00"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	kind, details := decodeFailure(t, rec)
	if kind != KindValidation {
		t.Fatalf("kind = %q, want %q", kind, KindValidation)
	}
	if _, ok := details["phone"]; !ok {
		t.Fatalf("details missing phone violation: %v", details)
	}
	if store.calls != 0 {
		t.Fatalf("store called despite validation failure")
	}
}

func TestCreateBookingRateLimited(t *testing.T) {
	store := &fakeAdmissionStore{}
	h := newBookingHandler(store, &fakeLimiter{allowed: false})

	rec := postBooking(t, h, `{"name":"Dana Levi","phone":"0501234567","date":"`+nextOpenDay(t)+`","time":"10:00"}`)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	kind, _ := decodeFailure(t, rec)
	if kind != KindRateLimited {
		t.Fatalf("kind = %q, want %q", kind, KindRateLimited)
	}
	if store.calls != 0 {
		t.Fatalf("store called despite rate limit")
	}
}

func TestCreateBookingSlotTaken(t *testing.T) {
	store := &fakeAdmissionStore{err: &pgconn.PgError{Code: "23505"}}
	h := newBookingHandler(store, &fakeLimiter{allowed: true})

	rec := postBooking(t, h, `{"name":"Dana Levi","phone":"0501234567","date":"`+nextOpenDay(t)+`","time":"10:00"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	kind, _ := decodeFailure(t, rec)
	if kind != KindSlotTaken {
		t.Fatalf("kind = %q, want %q", kind, KindSlotTaken)
	}
}

func TestCreateBookingClosedDay(t *testing.T) {
	store := &fakeAdmissionStore{}
	h := newBookingHandler(store, &fakeLimiter{allowed: true})

	rec := postBooking(t, h, `{"name":"Dana Levi","phone":"0501234567","date":"`+nextClosedDay(t)+`","time":"10:00"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	kind, details := decodeFailure(t, rec)
	if kind != KindValidation {
		t.Fatalf("kind = %q, want %q", kind, KindValidation)
	}
	if _, ok := details["slot"]; !ok {
		t.Fatalf("details missing slot violation: %v", details)
	}
	if store.calls != 0 {
		t.Fatalf("store called despite closed day")
	}
}

func TestCreateBookingBadJSON(t *testing.T) {
	h := newBookingHandler(&fakeAdmissionStore{}, &fakeLimiter{allowed: true})

	rec := postBooking(t, h, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSlotsNoPII(t *testing.T) {
	availStore := &fakeAvailStore{}
	for _, s := range []string{"10:00", "10:15"} {
		v, err := slots.ParseTimeOfDay(s)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
		}
		availStore.booked = append(availStore.booked, v)
	}
	avail := availability.NewIndex(availStore, nil, 0, nil)
	h := NewBookingHandler(nil, validate.New(), avail, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date="+nextOpenDay(t), nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Booked) != 2 {
		t.Fatalf("booked = %v, want 2 entries", resp.Booked)
	}
	if len(resp.Free) != len(slots.DaySlots())-2 {
		t.Fatalf("free = %d slots, want %d", len(resp.Free), len(slots.DaySlots())-2)
	}
	if strings.Contains(rec.Body.String(), "Dana") {
		t.Fatalf("response leaks patient data: %s", rec.Body.String())
	}
	if availStore.calls != 1 {
		t.Fatalf("store reads = %d, want 1 (free set derives from the booked fetch)", availStore.calls)
	}
}

func TestSlotsBadDate(t *testing.T) {
	avail := availability.NewIndex(&fakeAvailStore{}, nil, 0, nil)
	h := NewBookingHandler(nil, validate.New(), avail, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?date=not-a-date", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
