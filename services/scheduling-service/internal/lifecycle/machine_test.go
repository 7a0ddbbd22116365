package lifecycle

import (
	"errors"
	"testing"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

func TestTransitionGraph(t *testing.T) {
	allowed := [][2]model.Status{
		{model.StatusPending, model.StatusConfirmed},
		{model.StatusPending, model.StatusCancelled},
		{model.StatusPending, model.StatusNoShow},
		{model.StatusConfirmed, model.StatusArrived},
		{model.StatusConfirmed, model.StatusCancelled},
		{model.StatusConfirmed, model.StatusNoShow},
		{model.StatusArrived, model.StatusCompleted},
		{model.StatusArrived, model.StatusCancelled},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s -> %s to be allowed", edge[0], edge[1])
		}
	}

	denied := [][2]model.Status{
		{model.StatusPending, model.StatusArrived},
		{model.StatusPending, model.StatusCompleted},
		{model.StatusConfirmed, model.StatusCompleted},
		{model.StatusArrived, model.StatusNoShow},
		{model.StatusCompleted, model.StatusPending},
		{model.StatusCancelled, model.StatusConfirmed},
		{model.StatusNoShow, model.StatusPending},
		{model.StatusArrived, model.StatusPending},
	}
	for _, edge := range denied {
		if CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s -> %s to be rejected", edge[0], edge[1])
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminals := []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow}
	all := []model.Status{
		model.StatusPending, model.StatusConfirmed, model.StatusArrived,
		model.StatusCompleted, model.StatusCancelled, model.StatusNoShow,
	}
	for _, from := range terminals {
		for _, to := range all {
			if from == to {
				continue
			}
			if err := Check(from, to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected %s -> %s to fail with ErrInvalidTransition, got %v", from, to, err)
			}
		}
	}
}

func TestCheckAlreadyApplied(t *testing.T) {
	if err := Check(model.StatusConfirmed, model.StatusConfirmed); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}
}

func TestCheckRejectsUnknownStatus(t *testing.T) {
	if err := Check(model.StatusPending, model.Status("paused")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unknown status, got %v", err)
	}
}

func TestRecordsTreatment(t *testing.T) {
	if !RecordsTreatment(model.StatusArrived, model.StatusCompleted) {
		t.Fatal("completing a visit must record the performed treatment")
	}
	if RecordsTreatment(model.StatusPending, model.StatusConfirmed) {
		t.Fatal("confirmation must not record a treatment")
	}
}
