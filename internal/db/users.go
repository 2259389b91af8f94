package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxlogvn/AiCMR/internal/model"
)

const userColumns = "id, email, username, password_hash, is_active, rank, created_at, updated_at"

func (db *Postgres) CreateUser(ctx context.Context, email, username, passwordHash string, rank int) (*model.User, error) {
	query := `
		INSERT INTO users (email, username, password_hash, rank, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns
	var user model.User
	err := db.Pool.QueryRow(ctx, query, email, username, passwordHash, rank).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.Rank,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email = $1", email)
}

func (db *Postgres) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return db.getUser(ctx, "id = $1", userID)
}

func (db *Postgres) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	var user model.User
	err := db.Pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.Rank,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := db.Pool.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserFields applies a partial update. Callers are expected to have
// run the change through the rank policy first; fields maps column name to
// new value and must be non-empty.
func (db *Postgres) UpdateUserFields(ctx context.Context, userID int64, fields map[string]any) (*model.User, error) {
	allowed := map[string]bool{"email": true, "username": true, "rank": true, "is_active": true}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	args = append(args, userID)
	for col, val := range fields {
		if !allowed[col] {
			return nil, fmt.Errorf("unknown user column %q", col)
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	query := `
		UPDATE users
		SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	var user model.User
	err := db.Pool.QueryRow(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.Rank,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) ListUsers(ctx context.Context, offset, limit int) ([]model.User, int64, error) {
	var total int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY id
		OFFSET $1 LIMIT $2
	`
	rows, err := db.Pool.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Username,
			&user.PasswordHash,
			&user.IsActive,
			&user.Rank,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	return users, total, rows.Err()
}
