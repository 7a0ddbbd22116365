package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/outbox"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/storage"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrAttachmentNotAllowed is returned when staff try to attach files
	// before the patient has actually shown up.
	ErrAttachmentNotAllowed = errors.New("attachments not allowed in current status")
)

// Store is the persistence surface the manager drives. UpdateStatus and
// AppendAttachment are guarded by the expected current state and report
// whether the guard matched.
type Store interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, from, to model.Status, treatmentSlug string, evt *outbox.Event) (model.Appointment, bool, error)
	AppendAttachment(ctx context.Context, id, ref string, allowed []model.Status) (model.Appointment, bool, error)
}

// Invalidator drops cached availability for a date whose occupancy changed.
type Invalidator interface {
	Invalidate(ctx context.Context, resource string, date time.Time)
}

type Manager struct {
	store  Store
	avail  Invalidator
	logger *slog.Logger
}

func NewManager(store Store, avail Invalidator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, avail: avail, logger: logger}
}

// Transition applies a staff-requested status change. The supplied treatment
// slug is recorded only on arrived -> completed (the treatment actually
// performed); on every other edge it is ignored. Re-applying a transition
// that already happened returns the current row with ErrAlreadyApplied.
func (m *Manager) Transition(ctx context.Context, id string, to model.Status, treatmentSlug string) (model.Appointment, error) {
	appt, err := m.store.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}

	if err := Check(appt.Status, to); err != nil {
		if err == ErrAlreadyApplied {
			return appt, ErrAlreadyApplied
		}
		return model.Appointment{}, err
	}

	if !RecordsTreatment(appt.Status, to) {
		treatmentSlug = ""
	}

	var evt *outbox.Event
	if to == model.StatusConfirmed {
		payload, err := json.Marshal(map[string]any{
			"name":  appt.PatientName,
			"phone": appt.Phone,
			"date":  appt.Date.Format("2006-01-02"),
			"time":  appt.SlotTime.String(),
		})
		if err != nil {
			return model.Appointment{}, err
		}
		evt = &outbox.Event{
			AggregateType: "appointment",
			EventType:     outbox.EventAppointmentConfirmed,
			Payload:       payload,
		}
	}

	updated, applied, err := m.store.UpdateStatus(ctx, id, appt.Status, to, treatmentSlug, evt)
	if err != nil {
		return model.Appointment{}, err
	}
	if !applied {
		// Guard missed: someone else moved the row between our read and
		// write. Re-read and classify.
		current, err := m.store.Get(ctx, id)
		if err != nil {
			if storage.IsNotFound(err) {
				return model.Appointment{}, ErrNotFound
			}
			return model.Appointment{}, err
		}
		if current.Status == to {
			return current, ErrAlreadyApplied
		}
		return model.Appointment{}, ErrInvalidTransition
	}

	if m.avail != nil && appt.Status.OccupiesSlot() != to.OccupiesSlot() {
		m.avail.Invalidate(ctx, updated.Resource, updated.Date)
	}
	m.logger.Info("appointment transitioned",
		"appointment_id", updated.ID,
		"from", appt.Status,
		"to", to,
	)
	return updated, nil
}

// attachmentStatuses are the states in which staff may still grow the
// attachment list: during and after the visit, including the archived
// completed state, which is otherwise immutable.
var attachmentStatuses = []model.Status{model.StatusArrived, model.StatusCompleted}

// AppendAttachment records a staff-uploaded attachment reference.
func (m *Manager) AppendAttachment(ctx context.Context, id, ref string) (model.Appointment, error) {
	updated, applied, err := m.store.AppendAttachment(ctx, id, ref, attachmentStatuses)
	if err != nil {
		return model.Appointment{}, err
	}
	if applied {
		return updated, nil
	}

	if _, err := m.store.Get(ctx, id); err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	return model.Appointment{}, ErrAttachmentNotAllowed
}
