package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited - the caller exhausted its attempt budget for the window.
var ErrRateLimited = errors.New("rate limited")

// RateLimiter enforces fixed-window limits with Redis counters: INCR plus
// an EXPIRE set on the window's first hit. When Redis is unreachable the
// limiter fails open - for a CMS, availability wins over throttling, and
// the event is logged.
type RateLimiter struct {
	rdb    redis.UniversalClient
	window time.Duration
	log    *slog.Logger
}

func NewRateLimiter(rdb redis.UniversalClient, window time.Duration, log *slog.Logger) *RateLimiter {
	return &RateLimiter{rdb: rdb, window: window, log: log}
}

// Allow consumes one attempt for key and fails once max is exceeded within
// the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int) error {
	if max <= 0 {
		return nil
	}

	full := "rl:" + key
	count, err := l.rdb.Incr(ctx, full).Result()
	if err != nil {
		l.log.Warn("rate limiter unavailable, failing open", "err", err)
		return nil
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, full, l.window).Err(); err != nil {
			l.log.Warn("rate limiter expire failed", "key", full, "err", err)
		}
	}
	if count > int64(max) {
		return fmt.Errorf("%w: %s", ErrRateLimited, key)
	}
	return nil
}
