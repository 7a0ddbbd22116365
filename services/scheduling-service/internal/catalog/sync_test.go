package catalog

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

type memCatalog struct {
	upserts []model.Treatment
	deletes []string
}

func (m *memCatalog) Upsert(ctx context.Context, t model.Treatment) error {
	m.upserts = append(m.upserts, t)
	return nil
}

func (m *memCatalog) Delete(ctx context.Context, slug string) error {
	m.deletes = append(m.deletes, slug)
	return nil
}

func TestUpsertHandler(t *testing.T) {
	store := &memCatalog{}
	handler := UpsertHandler(store, nil)

	msg := kafka.Message{Value: []byte(`{"slug":"root-canal","title":"Root Canal"}`)}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(store.upserts))
	}
	if store.upserts[0].Slug != "root-canal" || store.upserts[0].Title != "Root Canal" {
		t.Fatalf("upserted %+v", store.upserts[0])
	}
}

func TestUpsertHandlerSkipsMalformed(t *testing.T) {
	store := &memCatalog{}
	handler := UpsertHandler(store, nil)

	for _, raw := range []string{`{not json`, `{"title":"no slug"}`} {
		if err := handler(context.Background(), kafka.Message{Value: []byte(raw)}); err != nil {
			t.Fatalf("handler(%q) should not error: %v", raw, err)
		}
	}
	if len(store.upserts) != 0 {
		t.Fatalf("upserts = %d, want 0", len(store.upserts))
	}
}

func TestRemoveHandler(t *testing.T) {
	store := &memCatalog{}
	handler := RemoveHandler(store, nil)

	msg := kafka.Message{Value: []byte(`{"slug":"root-canal"}`)}
	if err := handler(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.deletes) != 1 || store.deletes[0] != "root-canal" {
		t.Fatalf("deletes = %v", store.deletes)
	}
}
