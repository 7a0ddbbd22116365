package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/consumer"
	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

// Store is the slice of the treatment repository the sync needs.
type Store interface {
	Upsert(ctx context.Context, t model.Treatment) error
	Delete(ctx context.Context, slug string) error
}

type treatmentEvent struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// UpsertHandler applies catalog update events to the local treatment cache.
func UpsertHandler(store Store, logger *slog.Logger) consumer.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg kafka.Message) error {
		var evt treatmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			// Malformed payloads are not retryable; log and move on.
			logger.Error("malformed treatment event", "err", err)
			return nil
		}
		evt.Slug = strings.TrimSpace(evt.Slug)
		if evt.Slug == "" {
			logger.Error("treatment event missing slug")
			return nil
		}
		if err := store.Upsert(ctx, model.Treatment{
			Slug:      evt.Slug,
			Title:     strings.TrimSpace(evt.Title),
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("upsert treatment %s: %w", evt.Slug, err)
		}
		logger.Info("treatment synced", "slug", evt.Slug)
		return nil
	}
}

// RemoveHandler applies catalog removal events to the local treatment cache.
func RemoveHandler(store Store, logger *slog.Logger) consumer.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg kafka.Message) error {
		var evt treatmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("malformed treatment event", "err", err)
			return nil
		}
		evt.Slug = strings.TrimSpace(evt.Slug)
		if evt.Slug == "" {
			logger.Error("treatment event missing slug")
			return nil
		}
		if err := store.Delete(ctx, evt.Slug); err != nil {
			return fmt.Errorf("delete treatment %s: %w", evt.Slug, err)
		}
		logger.Info("treatment removed", "slug", evt.Slug)
		return nil
	}
}
