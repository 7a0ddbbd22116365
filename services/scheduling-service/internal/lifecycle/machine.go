// Package lifecycle governs appointment status from creation to archive.
// Transitions are staff actions only; the original requester never mutates
// an appointment after submitting it.
package lifecycle

import (
	"errors"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyApplied    = errors.New("transition already applied")
)

// edges is the full transition graph. Cancellation from any active state is
// the escape hatch; terminal states have no outgoing edges.
var edges = map[model.Status]map[model.Status]bool{
	model.StatusPending: {
		model.StatusConfirmed: true,
		model.StatusCancelled: true,
		model.StatusNoShow:    true,
	},
	model.StatusConfirmed: {
		model.StatusArrived:   true,
		model.StatusCancelled: true,
		model.StatusNoShow:    true,
	},
	model.StatusArrived: {
		model.StatusCompleted: true,
		model.StatusCancelled: true,
	},
}

// CanTransition reports whether from -> to is a legal staff action.
func CanTransition(from, to model.Status) bool {
	return edges[from][to]
}

// Check validates a requested transition. A repeat of an already-applied
// transition is reported as ErrAlreadyApplied so retries stay harmless and
// distinguishable from genuinely invalid edges.
func Check(from, to model.Status) error {
	if !to.Valid() {
		return ErrInvalidTransition
	}
	if from == to {
		return ErrAlreadyApplied
	}
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// RecordsTreatment reports whether the transition carries the treatment
// actually performed. Staff supply it when completing a visit; it may differ
// from the treatment originally requested.
func RecordsTreatment(from, to model.Status) bool {
	return from == model.StatusArrived && to == model.StatusCompleted
}
