package consumer

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type memInbox struct {
	seen map[string]bool
}

func (m *memInbox) Seen(ctx context.Context, eventID string) (bool, error) {
	return m.seen[eventID], nil
}

func (m *memInbox) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func eventMessage(id string) kafka.Message {
	return kafka.Message{
		Topic: "catalog.treatment.updated.v1",
		Value: []byte(`{"slug":"cleaning","title":"Teeth Cleaning"}`),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id)},
			{Key: "event_type", Value: []byte("catalog.treatment.updated.v1")},
		},
	}
}

func TestProcessRetriesFailedHandler(t *testing.T) {
	inboxStore := &memInbox{seen: map[string]bool{}}
	calls := 0
	c := &Consumer{
		logger: slog.Default(),
		inbox:  inboxStore,
		handler: func(ctx context.Context, msg kafka.Message) error {
			calls++
			if calls == 1 {
				return errors.New("transient storage failure")
			}
			return nil
		},
	}
	msg := eventMessage("evt-1")
	ctx := context.Background()

	// First delivery fails in the handler: the event must stay unrecorded so
	// the broker's redelivery is not mistaken for a duplicate.
	c.process(ctx, msg)
	if inboxStore.seen["evt-1"] {
		t.Fatal("failed handler left an inbox record, redelivery would be dropped")
	}

	// Redelivery succeeds and is recorded.
	c.process(ctx, msg)
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
	if !inboxStore.seen["evt-1"] {
		t.Fatal("successful handler did not record the event")
	}

	// A true duplicate after success never reaches the handler.
	c.process(ctx, msg)
	if calls != 2 {
		t.Fatalf("duplicate delivery reached the handler, calls = %d", calls)
	}
}

func TestProcessSkipsAlreadySeen(t *testing.T) {
	inboxStore := &memInbox{seen: map[string]bool{"evt-2": true}}
	called := false
	c := &Consumer{
		logger: slog.Default(),
		inbox:  inboxStore,
		handler: func(ctx context.Context, msg kafka.Message) error {
			called = true
			return nil
		},
	}

	c.process(context.Background(), eventMessage("evt-2"))
	if called {
		t.Fatal("handler ran for an already-processed event")
	}
}
