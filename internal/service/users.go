package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/model"
)

// UserAdminStore is the persistence surface for user management.
type UserAdminStore interface {
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]model.User, int64, error)
	UpdateUserFields(ctx context.Context, userID int64, fields map[string]any) (*model.User, error)
}

// UserService covers user management. Moderators may read the directory;
// which fields a caller may change is decided by the rank policy, not ad
// hoc branching (currently admin only).
type UserService struct {
	store  UserAdminStore
	policy *RankPolicy
	log    *slog.Logger
}

func NewUserService(store UserAdminStore, policy *RankPolicy, log *slog.Logger) *UserService {
	return &UserService{store: store, policy: policy, log: log}
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]model.User, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListUsers(ctx, offset, limit)
}

// Update applies an edit to another user, gated by the rank policy. Rank
// assignments are capped at the caller's own rank so nobody promotes past
// themselves.
func (s *UserService) Update(ctx context.Context, actor *model.AuthUser, userID int64, req model.UserUpdateRequest) (*model.User, error) {
	if err := s.policy.CheckUpdate("users", actor.Rank, req.Fields()); err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if req.Email != nil {
		normEmail, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		fields["email"] = normEmail
	}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if len(username) < minUsernameLength || len(username) > maxUsernameLength {
			return nil, fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLength, maxUsernameLength)
		}
		fields["username"] = username
	}
	if req.Rank != nil {
		if *req.Rank < 0 || *req.Rank > actor.Rank {
			return nil, fmt.Errorf("%w: cannot assign rank %d", ErrForbidden, *req.Rank)
		}
		fields["rank"] = *req.Rank
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}

	user, err := s.store.UpdateUserFields(ctx, userID, fields)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, db.ErrDuplicate):
			return nil, ErrDuplicate
		}
		return nil, err
	}

	s.log.Info("user updated", "user_id", userID, "actor_id", actor.ID)
	return user, nil
}
