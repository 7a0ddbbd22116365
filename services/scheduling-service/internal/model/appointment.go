package model

import (
	"time"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusArrived, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the appointment still belongs in the operational
// queue (as opposed to the historical archive).
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusArrived:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// OccupiesSlot reports whether an appointment in this status blocks its
// (date, time) slot for new bookings. Cancelled and no-show free the slot;
// everything else, completed included, keeps it.
func (s Status) OccupiesSlot() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// DefaultResource is the single bookable resource today. The slot occupancy
// key is (resource, date, time) so adding chairs later only widens the key.
const DefaultResource = "clinic"

type Appointment struct {
	ID            string
	Resource      string
	PatientName   string
	Phone         string
	Email         string
	Date          time.Time
	SlotTime      slots.TimeOfDay
	TreatmentSlug string
	Note          string
	Attachments   []string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Treatment is a read-only row from the externally managed catalog, cached
// locally so appointments can be tagged and filtered without a remote call.
type Treatment struct {
	Slug      string
	Title     string
	UpdatedAt time.Time
}
