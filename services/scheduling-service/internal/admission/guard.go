// Package admission decides whether a candidate booking may be committed.
// It is the only code path that creates appointments. The decisive slot
// check is the storage constraint hit at insert time, not any earlier read,
// so two racing requests for the same slot always resolve to one winner.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/outbox"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/storage"
)

var (
	ErrRateLimited = errors.New("too many booking attempts")
	ErrSlotTaken   = errors.New("slot already booked")
	ErrNotBookable = errors.New("requested slot is not bookable")
)

// Store commits a pending appointment and its notification event atomically.
type Store interface {
	CreatePending(ctx context.Context, appt *model.Appointment, evt outbox.Event) (model.Appointment, error)
}

// Limiter throttles attempts per requester key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Invalidator drops cached availability for a date after a commit.
type Invalidator interface {
	Invalidate(ctx context.Context, resource string, date time.Time)
}

// Candidate is a validated, normalized booking request.
type Candidate struct {
	Name          string
	Phone         string
	Email         string
	Date          time.Time
	Time          slots.TimeOfDay
	TreatmentSlug string
	Note          string
}

type Guard struct {
	store   Store
	limiter Limiter
	avail   Invalidator
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

func NewGuard(store Store, limiter Limiter, avail Invalidator, loc *time.Location, logger *slog.Logger) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:   store,
		limiter: limiter,
		avail:   avail,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// Admit runs the admission sequence: rate check, template check, atomic
// insert. On success the appointment is pending and its notification event
// is queued; the Kafka publisher picks that up after commit.
func (g *Guard) Admit(ctx context.Context, cand Candidate) (model.Appointment, error) {
	allowed, err := g.limiter.Allow(ctx, cand.Phone)
	if err != nil {
		return model.Appointment{}, err
	}
	if !allowed {
		return model.Appointment{}, ErrRateLimited
	}

	today := g.now().In(g.loc)
	if !slots.IsBookable(cand.Date, cand.Time, today) {
		return model.Appointment{}, ErrNotBookable
	}

	payload, err := json.Marshal(map[string]any{
		"name":  cand.Name,
		"phone": cand.Phone,
		"date":  cand.Date.Format("2006-01-02"),
		"time":  cand.Time.String(),
	})
	if err != nil {
		return model.Appointment{}, err
	}

	appt := &model.Appointment{
		Resource:      model.DefaultResource,
		PatientName:   cand.Name,
		Phone:         cand.Phone,
		Email:         cand.Email,
		Date:          cand.Date,
		SlotTime:      cand.Time,
		TreatmentSlug: cand.TreatmentSlug,
		Note:          cand.Note,
		Status:        model.StatusPending,
	}
	created, err := g.store.CreatePending(ctx, appt, outbox.Event{
		AggregateType: "appointment",
		EventType:     outbox.EventAppointmentRequested,
		Payload:       payload,
	})
	if err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, err
	}

	if g.avail != nil {
		g.avail.Invalidate(ctx, created.Resource, created.Date)
	}
	g.logger.Info("appointment admitted",
		"appointment_id", created.ID,
		"date", created.Date.Format("2006-01-02"),
		"time", created.SlotTime.String(),
	)
	return created, nil
}
