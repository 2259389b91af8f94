package db

import (
	"context"
	"errors"
	"time"

	"github.com/maxlogvn/AiCMR/internal/model"
)

// ErrTokenInactive - the refresh token row exists but is revoked or past its
// expiry. The service collapses this with ErrNotFound before it reaches a
// client, so a caller cannot probe which case it hit.
var ErrTokenInactive = errors.New("refresh token inactive")

func (db *Postgres) InsertRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.Pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
		token.Revoked,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// RotateRefreshToken atomically redeems the token identified by oldHash and
// persists its successor. The row lock taken by FOR UPDATE serializes
// concurrent redemptions of the same token: exactly one transaction commits,
// the loser observes revoked = TRUE and fails. Rows are flagged, never
// deleted, so the chain stays auditable.
func (db *Postgres) RotateRefreshToken(ctx context.Context, oldHash string, successor *model.RefreshToken) (int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var (
		userID    int64
		expiresAt time.Time
		revoked   bool
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, expires_at, revoked
		FROM refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, oldHash).Scan(&userID, &expiresAt, &revoked)
	if err != nil {
		if IsNoRows(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	if revoked || time.Now().After(expiresAt) {
		return 0, ErrTokenInactive
	}

	if _, err = tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token_hash = $1
	`, oldHash); err != nil {
		return 0, err
	}

	successor.UserID = userID
	if _, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, successor.ID, successor.UserID, successor.TokenHash, successor.ExpiresAt, successor.CreatedAt); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return userID, nil
}

// RevokeRefreshToken flips the revoked flag on the caller's own token.
// Scoping by user id keeps one user from logging out another's session.
func (db *Postgres) RevokeRefreshToken(ctx context.Context, userID int64, tokenHash string) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token_hash = $1 AND user_id = $2 AND revoked = FALSE
	`
	tag, err := db.Pool.Exec(ctx, query, tokenHash, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
