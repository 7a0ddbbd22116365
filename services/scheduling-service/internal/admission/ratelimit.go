package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter keyed by the requester's normalized
// phone number, shared across service instances through Redis. It counts
// submission attempts, not successful bookings, so a burst of losing
// attempts still exhausts the budget.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

// Allow records one attempt for phone and reports whether it is within the
// window budget. A Redis outage fails open: a public booking form should
// degrade to unthrottled rather than refuse everyone.
func (rl *RateLimiter) Allow(ctx context.Context, phone string) (bool, error) {
	if rl.rdb == nil {
		// No Redis configured: unthrottled, the same degradation as an outage.
		return true, nil
	}
	key := "booking_rl:" + phone
	count, err := rl.incr(ctx, key)
	if err != nil {
		rl.logger.Warn("booking rate limiter unavailable, failing open", "err", err)
		return true, nil
	}
	return count <= int64(rl.limit), nil
}

func (rl *RateLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}
