package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/omerkatz/dentsched/libs/db"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/outbox"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
)

// Repository persists appointments. Slot uniqueness is enforced by the
// partial unique index appointments_active_slot_key over
// (resource, slot_date, slot_time) for slot-occupying statuses, so two
// concurrent inserts for the same slot serialize to one winner no matter how
// many service instances are running.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id::text, resource, patient_name, phone, COALESCE(email, ''),
	slot_date, to_char(slot_time, 'HH24:MI'), COALESCE(treatment_slug, ''),
	COALESCE(note, ''), COALESCE(attachments, '{}'), status, created_at, updated_at`

// CreatePending inserts a new pending appointment together with its
// notification outbox event in a single transaction. A slot conflict
// surfaces as an error for which IsConflict returns true; nothing is
// persisted in that case.
func (r *Repository) CreatePending(ctx context.Context, appt *model.Appointment, evt outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, resource, patient_name, phone, email, slot_date, slot_time, treatment_slug, note, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7::time, NULLIF($8, ''), NULLIF($9, ''), $10)
		RETURNING `+appointmentColumns,
		id, appt.Resource, appt.PatientName, appt.Phone, appt.Email,
		appt.Date, appt.SlotTime.String(), appt.TreatmentSlug, appt.Note, model.StatusPending)

	created, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}

	evt.AggregateID = created.ID
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// UpdateStatus applies from -> to guarded by the current status, so a lost
// race or a retried request cannot double-apply. The returned bool is false
// when the guard matched no row; callers re-read and classify. When evt is
// non-nil it is written to the outbox in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to model.Status, treatmentSlug string, evt *outbox.Event) (model.Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			treatment_slug = COALESCE(NULLIF($4, ''), treatment_slug),
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, from, to, treatmentSlug)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}

	if evt != nil {
		e := *evt
		e.AggregateID = updated.ID
		if err := r.outbox.Insert(ctx, tx, e); err != nil {
			return model.Appointment{}, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	return updated, true, nil
}

// AppendAttachment adds a staff-supplied attachment reference, guarded by
// the statuses in which the attachment list is still writable.
func (r *Repository) AppendAttachment(ctx context.Context, id, ref string, allowed []model.Status) (model.Appointment, bool, error) {
	statuses := make([]string, 0, len(allowed))
	for _, s := range allowed {
		statuses = append(statuses, string(s))
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET attachments = array_append(COALESCE(attachments, '{}'), $2),
			updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, ref, statuses)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return updated, true, nil
}

// BookedSlots returns the slot times occupied on a date. Cancelled and
// no-show rows are excluded here, not in callers: a freed slot must be
// rebookable everywhere.
func (r *Repository) BookedSlots(ctx context.Context, resource string, date time.Time) ([]slots.TimeOfDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(slot_time, 'HH24:MI')
		FROM appointments
		WHERE resource = $1
			AND slot_date = $2
			AND status NOT IN ('cancelled', 'no_show')
		ORDER BY slot_time
	`, resource, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var booked []slots.TimeOfDay
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		tod, err := slots.ParseTimeOfDay(raw)
		if err != nil {
			return nil, err
		}
		booked = append(booked, tod)
	}
	return booked, rows.Err()
}

// ListRange returns appointments whose slot date falls in [from, to],
// ordered by date then time. Staff views filter the result in memory.
func (r *Repository) ListRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_date >= $1 AND slot_date <= $2
		ORDER BY slot_date, slot_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var slotTime string
	if err := row.Scan(
		&appt.ID,
		&appt.Resource,
		&appt.PatientName,
		&appt.Phone,
		&appt.Email,
		&appt.Date,
		&slotTime,
		&appt.TreatmentSlug,
		&appt.Note,
		&appt.Attachments,
		&appt.Status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	tod, err := slots.ParseTimeOfDay(slotTime)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.SlotTime = tod
	return appt, nil
}

// IsConflict reports whether err is the slot-uniqueness violation raised by
// the partial unique index (or an equivalent exclusion constraint).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" || pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
