// Package availability computes the booked/free slot view the booking UI
// polls. Reads may be served from a short-lived Redis cache; every
// committing write invalidates the date's entry, which bounds how stale a
// viewer can get. Admission never reads this view — it re-checks against the
// store at commit time.
package availability

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/slots"
)

// Store is the authoritative source of occupied slots.
type Store interface {
	BookedSlots(ctx context.Context, resource string, date time.Time) ([]slots.TimeOfDay, error)
}

type Index struct {
	store  Store
	cache  *redis.Client // nil disables caching
	ttl    time.Duration
	logger *slog.Logger
}

func NewIndex(store Store, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Index {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, cache: cache, ttl: ttl, logger: logger}
}

// BookedSlots returns the occupied slot times for a date, cache first. Cache
// failures degrade to the store, never to an error.
func (ix *Index) BookedSlots(ctx context.Context, resource string, date time.Time) ([]slots.TimeOfDay, error) {
	key := cacheKey(resource, date)

	if ix.cache != nil {
		raw, err := ix.cache.Get(ctx, key).Result()
		if err == nil {
			if booked, ok := decode(raw); ok {
				return booked, nil
			}
		} else if err != redis.Nil {
			ix.logger.Warn("availability cache read failed", "err", err, "key", key)
		}
	}

	booked, err := ix.store.BookedSlots(ctx, resource, date)
	if err != nil {
		return nil, err
	}

	if ix.cache != nil {
		if err := ix.cache.Set(ctx, key, encode(booked), ix.ttl).Err(); err != nil {
			ix.logger.Warn("availability cache write failed", "err", err, "key", key)
		}
	}
	return booked, nil
}

// Free is DaySlots minus booked, in template order. Callers fetch the booked
// set once and derive both views from it.
func Free(booked []slots.TimeOfDay) []slots.TimeOfDay {
	taken := make(map[slots.TimeOfDay]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	var free []slots.TimeOfDay
	for _, t := range slots.DaySlots() {
		if !taken[t] {
			free = append(free, t)
		}
	}
	return free
}

// Invalidate drops the cached entry for a date. Best-effort: a failed DEL
// only stretches staleness to the TTL.
func (ix *Index) Invalidate(ctx context.Context, resource string, date time.Time) {
	if ix.cache == nil {
		return
	}
	key := cacheKey(resource, date)
	if err := ix.cache.Del(ctx, key).Err(); err != nil {
		ix.logger.Warn("availability cache invalidation failed", "err", err, "key", key)
	}
}

func cacheKey(resource string, date time.Time) string {
	return "avail:" + resource + ":" + date.Format("2006-01-02")
}

func encode(booked []slots.TimeOfDay) string {
	strs := make([]string, 0, len(booked))
	for _, t := range booked {
		strs = append(strs, t.String())
	}
	b, _ := json.Marshal(strs)
	return string(b)
}

func decode(raw string) ([]slots.TimeOfDay, bool) {
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, false
	}
	booked := make([]slots.TimeOfDay, 0, len(strs))
	for _, s := range strs {
		t, err := slots.ParseTimeOfDay(s)
		if err != nil {
			return nil, false
		}
		booked = append(booked, t)
	}
	return booked, true
}
