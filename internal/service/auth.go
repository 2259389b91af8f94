package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maxlogvn/AiCMR/internal/config"
	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/model"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	minPasswordLength = 8
	maxPasswordLength = 128
)

var (
	// ErrInvalidInput - request failed basic validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials - unknown email or wrong password, not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveUser - credentials are fine but the account is disabled.
	ErrInactiveUser = errors.New("inactive user")
	// ErrInvalidToken - malformed, tampered, or out-of-scope token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken - well-formed token past its expiry. Kept distinct from
	// ErrInvalidToken so clients can chain into the refresh flow.
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidRefreshToken - refresh token not found, revoked, or expired.
	// Deliberately one error: distinguishing would leak ledger state.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrDuplicate - email, username, or slug already taken.
	ErrDuplicate = errors.New("already exists")
	// ErrNotFound - referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden - authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")
)

// UserStore is the slice of persistence the auth service needs for users.
type UserStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string, rank int) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
}

// RefreshTokenStore is the persisted half of the refresh-token ledger.
// RotateRefreshToken must be atomic: revoke-old and insert-successor either
// both happen or neither does.
type RefreshTokenStore interface {
	InsertRefreshToken(ctx context.Context, token *model.RefreshToken) error
	RotateRefreshToken(ctx context.Context, oldHash string, successor *model.RefreshToken) (int64, error)
	RevokeRefreshToken(ctx context.Context, userID int64, tokenHash string) (bool, error)
}

// AuthStore is implemented by db.Postgres.
type AuthStore interface {
	UserStore
	RefreshTokenStore
}

// Mailer delivers password-reset tokens out of band. Delivery is an external
// collaborator; the development implementation just logs.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// ResetTokenMarker records redeemed reset-token IDs so a captured token
// cannot be replayed within its TTL. First MarkUsed for a given ID returns
// true; every later call returns false.
type ResetTokenMarker interface {
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

type AuthService struct {
	store       AuthStore
	codec       *TokenCodec
	mailer      Mailer
	resetMarker ResetTokenMarker
	refreshTTL  time.Duration
	resetTTL    time.Duration
	log         *slog.Logger
}

func NewAuthService(store AuthStore, codec *TokenCodec, mailer Mailer, marker ResetTokenMarker, cfg config.AuthConfig, log *slog.Logger) *AuthService {
	return &AuthService{
		store:       store,
		codec:       codec,
		mailer:      mailer,
		resetMarker: marker,
		refreshTTL:  cfg.RefreshTokenTTL,
		resetTTL:    cfg.ResetTokenTTL,
		log:         log,
	}
}

// Register creates a new member account. Duplicate email or username,
// including one created by a concurrent registration, surfaces as
// ErrDuplicate via the uniqueness constraint rather than a pre-check race.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*model.User, error) {
	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLength, maxUsernameLength)
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, normEmail, username, hash, model.MemberRank)
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	s.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and returns a fresh access/refresh pair. The
// refresh token is persisted as a new ledger row.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info("user logged in", "user_id", user.ID)
	return pair, nil
}

// Refresh redeems a refresh token for a new pair. The presented token is
// revoked and its successor persisted in one transaction, so any given
// token string rotates at most once; a replay observes the revoked row.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claimUserID, err := s.codec.VerifyRefreshClaims(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.store.GetUserByID(ctx, claimUserID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	newRefresh, successor, err := s.mintRefreshRecord(user.ID)
	if err != nil {
		return nil, err
	}

	rowUserID, err := s.store.RotateRefreshToken(ctx, hashToken(refreshToken), successor)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrTokenInactive) {
			s.log.Warn("refresh rejected", "user_id", claimUserID)
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if rowUserID != claimUserID {
		// Ledger row belongs to someone else; treat as forgery.
		return nil, ErrInvalidRefreshToken
	}

	accessToken, err := s.codec.IssueAccess(user.ID, user.Rank)
	if err != nil {
		return nil, err
	}

	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		TokenType:    "bearer",
	}, nil
}

// Logout revokes the presented refresh token, scoped to the authenticated
// caller. Other sessions of the same user stay valid.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrInvalidRefreshToken
	}

	revoked, err := s.store.RevokeRefreshToken(ctx, userID, hashToken(refreshToken))
	if err != nil {
		return err
	}
	if !revoked {
		return ErrInvalidRefreshToken
	}
	s.log.Info("user logged out", "user_id", userID)
	return nil
}

// RequestPasswordReset issues a scoped reset token when the account exists.
// The caller-visible outcome is identical either way; account enumeration
// through this endpoint must not be possible.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil
	}

	user, err := s.store.GetUserByEmail(ctx, normEmail)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Error("password reset lookup failed", "err", err)
		}
		return nil
	}
	if !user.IsActive {
		return nil
	}

	token, err := s.codec.IssueReset(user.ID)
	if err != nil {
		s.log.Error("reset token issue failed", "err", err)
		return nil
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.log.Error("reset mail delivery failed", "user_id", user.ID, "err", err)
	}
	return nil
}

// ResetPassword redeems a reset token. The token's ID is marked used before
// the password changes, so redemption is single-use even though validity is
// otherwise purely cryptographic.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	userID, tokenID, err := s.codec.VerifyReset(token)
	if err != nil {
		return err
	}

	first, err := s.resetMarker.MarkUsed(ctx, tokenID, s.resetTTL)
	if err != nil {
		return err
	}
	if !first {
		return ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.log.Info("password reset", "user_id", user.ID)
	return nil
}

// CurrentUser loads the full record behind a verified access token.
func (s *AuthService) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) VerifyAccess(tokenStr string) (*model.AuthUser, error) {
	claims, err := s.codec.VerifyAccess(tokenStr)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &model.AuthUser{ID: userID, Rank: claims.Rank}, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *model.User) (*model.TokenResponse, error) {
	accessToken, err := s.codec.IssueAccess(user.ID, user.Rank)
	if err != nil {
		return nil, err
	}

	refreshToken, record, err := s.mintRefreshRecord(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertRefreshToken(ctx, record); err != nil {
		return nil, err
	}

	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

func (s *AuthService) mintRefreshRecord(userID int64) (string, *model.RefreshToken, error) {
	token, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return "", nil, err
	}
	now := time.Now()
	record := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
		Revoked:   false,
	}
	return token, record, nil
}

// hashToken derives the ledger key for a token string. Only the digest is
// persisted; a database leak does not hand out usable refresh tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return strings.ToLower(email), nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	return nil
}
