package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const resetPasswordScope = "reset_password"

// TokenCodec signs and verifies the three token kinds this service issues:
// short-lived access tokens, refresh tokens (whose trust additionally lives
// in the persisted ledger), and scoped password-reset tokens. It is
// stateless; the secret is injected, never read from ambient globals.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

func NewTokenCodec(secret string, accessTTL, refreshTTL, resetTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
	}
}

type AccessClaims struct {
	Rank int `json:"rank"`
	jwt.RegisteredClaims
}

func (c AccessClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type refreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type resetClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func (c *TokenCodec) IssueAccess(userID int64, rank int) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Rank: rank,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	return c.sign(claims)
}

func (c *TokenCodec) IssueRefresh(userID int64) (string, error) {
	now := time.Now()
	claims := refreshClaims{
		Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			ID:        uuid.NewString(),
		},
	}
	return c.sign(claims)
}

func (c *TokenCodec) IssueReset(userID int64) (string, error) {
	now := time.Now()
	claims := resetClaims{
		Scope: resetPasswordScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.resetTTL)),
			ID:        uuid.NewString(),
		},
	}
	return c.sign(claims)
}

func (c *TokenCodec) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks signature, structure, and expiry. Expiry is reported
// as ErrExpiredToken, distinct from ErrInvalidToken, so callers can route
// straight to the refresh flow instead of forcing a logout.
func (c *TokenCodec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshClaims validates the cryptographic half of a refresh token.
// The persisted ledger check (revocation, rotation) happens separately.
func (c *TokenCodec) VerifyRefreshClaims(tokenStr string) (int64, error) {
	claims := &refreshClaims{}
	if err := c.parse(tokenStr, claims); err != nil {
		return 0, err
	}
	if claims.Type != "refresh" {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// VerifyReset validates a password-reset token and returns the subject and
// the token's unique ID (consumed by the single-use marker).
func (c *TokenCodec) VerifyReset(tokenStr string) (int64, string, error) {
	claims := &resetClaims{}
	if err := c.parse(tokenStr, claims); err != nil {
		return 0, "", err
	}
	if claims.Scope != resetPasswordScope || claims.ID == "" {
		return 0, "", ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", ErrInvalidToken
	}
	return userID, claims.ID, nil
}

func (c *TokenCodec) parse(tokenStr string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
