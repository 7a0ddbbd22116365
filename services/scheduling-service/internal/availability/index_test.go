package availability

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
)

type fakeStore struct {
	booked []slots.TimeOfDay
	calls  int
	err    error
}

func (f *fakeStore) BookedSlots(ctx context.Context, resource string, date time.Time) ([]slots.TimeOfDay, error) {
	f.calls++
	return f.booked, f.err
}

func tod(t *testing.T, s string) slots.TimeOfDay {
	t.Helper()
	v, err := slots.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return v
}

func newTestIndex(t *testing.T, store Store) (*Index, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewIndex(store, rdb, 30*time.Second, nil), mr
}

func TestFreeIsTemplateMinusBooked(t *testing.T) {
	free := Free([]slots.TimeOfDay{tod(t, "09:00"), tod(t, "10:00")})
	if len(free) != 30 {
		t.Fatalf("expected 30 free slots, got %d", len(free))
	}
	for _, s := range free {
		if s == tod(t, "09:00") || s == tod(t, "10:00") {
			t.Fatalf("booked slot %s leaked into free set", s)
		}
	}
	// Template order preserved.
	for i := 1; i < len(free); i++ {
		if free[i] <= free[i-1] {
			t.Fatal("free slots out of order")
		}
	}
}

func TestBookedSlotsCaches(t *testing.T) {
	store := &fakeStore{booked: []slots.TimeOfDay{tod(t, "11:15")}}
	ix, _ := newTestIndex(t, store)
	date := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		booked, err := ix.BookedSlots(ctx, model.DefaultResource, date)
		if err != nil {
			t.Fatalf("BookedSlots failed: %v", err)
		}
		if len(booked) != 1 || booked[0] != tod(t, "11:15") {
			t.Fatalf("unexpected booked set: %v", booked)
		}
	}
	if store.calls != 1 {
		t.Fatalf("expected a single store read, got %d", store.calls)
	}
}

func TestInvalidateForcesReread(t *testing.T) {
	store := &fakeStore{}
	ix, _ := newTestIndex(t, store)
	date := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := ix.BookedSlots(ctx, model.DefaultResource, date); err != nil {
		t.Fatalf("BookedSlots failed: %v", err)
	}
	store.booked = []slots.TimeOfDay{tod(t, "09:30")}
	ix.Invalidate(ctx, model.DefaultResource, date)

	booked, err := ix.BookedSlots(ctx, model.DefaultResource, date)
	if err != nil {
		t.Fatalf("BookedSlots failed: %v", err)
	}
	if len(booked) != 1 || booked[0] != tod(t, "09:30") {
		t.Fatalf("expected fresh read after invalidation, got %v", booked)
	}
	if store.calls != 2 {
		t.Fatalf("expected 2 store reads, got %d", store.calls)
	}
}

func TestCacheExpiryBoundsStaleness(t *testing.T) {
	store := &fakeStore{}
	ix, mr := newTestIndex(t, store)
	date := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := ix.BookedSlots(ctx, model.DefaultResource, date); err != nil {
		t.Fatalf("BookedSlots failed: %v", err)
	}
	mr.FastForward(31 * time.Second)

	if _, err := ix.BookedSlots(ctx, model.DefaultResource, date); err != nil {
		t.Fatalf("BookedSlots failed: %v", err)
	}
	if store.calls != 2 {
		t.Fatalf("expected re-read after TTL, got %d store reads", store.calls)
	}
}
