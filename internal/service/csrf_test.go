package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newCSRF(t *testing.T, relaxed bool) *CSRFService {
	t.Helper()
	return NewCSRFService(newTestRedis(t), testSecret, time.Hour, relaxed, discardLogger())
}

func TestCSRF_GetOrCreateIsStablePerSession(t *testing.T) {
	t.Parallel()

	svc := newCSRF(t, false)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := svc.GetOrCreate(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := svc.GetOrCreate(ctx, "session-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestCSRF_Validate(t *testing.T) {
	t.Parallel()

	svc := newCSRF(t, false)
	ctx := context.Background()

	token, err := svc.GetOrCreate(ctx, "session-1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
		header    string
		wantErr   error
	}{
		{"match", "session-1", token, nil},
		{"missing header", "session-1", "", ErrMissingCSRFToken},
		{"no session token", "unknown-session", token, ErrNoCSRFSession},
		{"empty session id", "", token, ErrNoCSRFSession},
		{"mismatch", "session-1", "wrong-token", ErrCSRFMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(ctx, tt.sessionID, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCSRF_RelaxedModeNeverBlocks(t *testing.T) {
	t.Parallel()

	svc := newCSRF(t, true)
	ctx := context.Background()

	token, err := svc.GetOrCreate(ctx, "session-1")
	require.NoError(t, err)

	// Missing header, mismatched header, and a proper match all pass.
	assert.NoError(t, svc.Validate(ctx, "session-1", ""))
	assert.NoError(t, svc.Validate(ctx, "session-1", "mismatched"))
	assert.NoError(t, svc.Validate(ctx, "session-1", token))
}

func TestCSRF_SessionCookieSigning(t *testing.T) {
	t.Parallel()

	svc := newCSRF(t, false)

	id, cookie := svc.NewSessionID()
	require.NotEmpty(t, id)

	parsed, ok := svc.ParseSessionCookie(cookie)
	require.True(t, ok)
	assert.Equal(t, id, parsed)

	_, ok = svc.ParseSessionCookie(cookie + "x")
	assert.False(t, ok, "tampered signature must not parse")

	_, ok = svc.ParseSessionCookie("forged-id." + "AAAA")
	assert.False(t, ok)

	_, ok = svc.ParseSessionCookie("no-separator")
	assert.False(t, ok)
}
