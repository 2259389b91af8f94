package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetUsedKeyPrefix = "pwreset:used:"

// RedisResetMarker persists redeemed reset-token IDs for the remainder of
// the token's lifetime. SET NX makes the first redemption the only one.
type RedisResetMarker struct {
	rdb redis.UniversalClient
}

func NewRedisResetMarker(rdb redis.UniversalClient) *RedisResetMarker {
	return &RedisResetMarker{rdb: rdb}
}

func (m *RedisResetMarker) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, resetUsedKeyPrefix+tokenID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reset marker: %w", err)
	}
	return ok, nil
}

// LogMailer stands in for a real delivery channel in development: the reset
// token lands in the logs instead of an inbox. Production wires an actual
// mail sender behind the same interface.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	m.log.Info("password reset token issued", "email", email, "token", token)
	return nil
}
