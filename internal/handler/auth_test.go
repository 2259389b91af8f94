package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/maxlogvn/AiCMR/internal/config"
	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/model"
	"github.com/maxlogvn/AiCMR/internal/service"
)

// emptyAuthStore knows no users; every login against it fails credentials.
type emptyAuthStore struct{}

func (emptyAuthStore) CreateUser(context.Context, string, string, string, int) (*model.User, error) {
	return nil, db.ErrDuplicate
}
func (emptyAuthStore) GetUserByEmail(context.Context, string) (*model.User, error) {
	return nil, db.ErrNotFound
}
func (emptyAuthStore) GetUserByID(context.Context, int64) (*model.User, error) {
	return nil, db.ErrNotFound
}
func (emptyAuthStore) UpdateUserPassword(context.Context, int64, string) error {
	return db.ErrNotFound
}
func (emptyAuthStore) InsertRefreshToken(context.Context, *model.RefreshToken) error {
	return nil
}
func (emptyAuthStore) RotateRefreshToken(context.Context, string, *model.RefreshToken) (int64, error) {
	return 0, db.ErrNotFound
}
func (emptyAuthStore) RevokeRefreshToken(context.Context, int64, string) (bool, error) {
	return false, nil
}

func (emptyAuthStore) SendPasswordReset(context.Context, string, string) error { return nil }
func (emptyAuthStore) MarkUsed(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func TestLoginThrottleNormalizesIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.AuthConfig{
		SecretKey:       "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: time.Hour,
		ResetTokenTTL:   15 * time.Minute,
	}
	codec := service.NewTokenCodec(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL)
	store := emptyAuthStore{}
	svc := service.NewAuthService(store, codec, store, store, cfg, log)
	limiter := service.NewRateLimiter(rdb, time.Minute, log)

	const loginMax = 3
	r := gin.New()
	r.POST("/api/v1/auth/login", NewAuthHandler(svc, limiter, loginMax).Login)

	login := func(email string) int {
		w := httptest.NewRecorder()
		body := `{"email":"` + email + `","password":"password123"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Case and whitespace variants of one address share a single budget.
	variants := []string{"a@x.com", "A@x.com", " a@X.com "}
	for _, email := range variants {
		if code := login(email); code != http.StatusUnauthorized {
			t.Fatalf("login %q: expected 401, got %d", email, code)
		}
	}
	if code := login("a@x.com"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d attempts across variants, got %d", loginMax, code)
	}

	// An unrelated identity still has its own budget.
	if code := login("b@x.com"); code != http.StatusUnauthorized {
		t.Fatalf("different identity: expected 401, got %d", code)
	}
}

func TestLoginRateKey(t *testing.T) {
	if got, want := loginRateKey(" A@X.com "), "login:id:a@x.com"; got != want {
		t.Fatalf("loginRateKey = %q, want %q", got, want)
	}
}
