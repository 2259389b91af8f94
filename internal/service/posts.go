package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/model"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// PostStore is the persistence surface for posts.
type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) (*model.Post, error)
	GetPostByID(ctx context.Context, postID int64) (*model.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*model.Post, error)
	ListPosts(ctx context.Context, status string, offset, limit int) ([]model.Post, int64, error)
	UpdatePostFields(ctx context.Context, postID int64, fields map[string]any) (*model.Post, error)
	DeletePost(ctx context.Context, postID int64) error
}

type PostService struct {
	store  PostStore
	policy *RankPolicy
	log    *slog.Logger
}

func NewPostService(store PostStore, policy *RankPolicy, log *slog.Logger) *PostService {
	return &PostService{store: store, policy: policy, log: log}
}

// Create adds a draft owned by the caller. Slug collisions surface as
// ErrDuplicate from the uniqueness constraint.
func (s *PostService) Create(ctx context.Context, actor *model.AuthUser, req model.PostCreateRequest) (*model.Post, error) {
	slug := strings.TrimSpace(strings.ToLower(req.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase words separated by hyphens", ErrInvalidInput)
	}

	post, err := s.store.CreatePost(ctx, &model.Post{
		Title:    strings.TrimSpace(req.Title),
		Slug:     slug,
		Excerpt:  req.Excerpt,
		Content:  req.Content,
		Status:   model.PostStatusDraft,
		AuthorID: actor.ID,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	s.log.Info("post created", "post_id", post.ID, "author_id", actor.ID)
	return post, nil
}

func (s *PostService) GetPublished(ctx context.Context, slug string) (*model.Post, error) {
	post, err := s.store.GetPostBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if post.Status != model.PostStatusPublished {
		return nil, ErrNotFound
	}
	return post, nil
}

// Get returns a post visible to the actor: published posts to everyone,
// drafts only to their author or moderators and above.
func (s *PostService) Get(ctx context.Context, actor *model.AuthUser, postID int64) (*model.Post, error) {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if post.Status != model.PostStatusPublished && !canManagePost(actor, post) {
		return nil, ErrNotFound
	}
	return post, nil
}

func (s *PostService) ListPublished(ctx context.Context, offset, limit int) ([]model.Post, int64, error) {
	return s.list(ctx, model.PostStatusPublished, offset, limit)
}

// ListAll returns posts of any status; moderator and above only.
func (s *PostService) ListAll(ctx context.Context, actor *model.AuthUser, status string, offset, limit int) ([]model.Post, int64, error) {
	if actor.Rank < model.ModeratorRank {
		return nil, 0, ErrForbidden
	}
	return s.list(ctx, status, offset, limit)
}

func (s *PostService) list(ctx context.Context, status string, offset, limit int) ([]model.Post, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListPosts(ctx, status, offset, limit)
}

// Update edits a post. Authors may edit their own content fields; everyone
// else goes through the rank policy, which limits moderators to status.
func (s *PostService) Update(ctx context.Context, actor *model.AuthUser, postID int64, req model.PostUpdateRequest) (*model.Post, error) {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	changed := req.Fields()
	if post.AuthorID != actor.ID {
		if err := s.policy.CheckUpdate("posts", actor.Rank, changed); err != nil {
			return nil, err
		}
	} else if len(changed) == 0 {
		return nil, fmt.Errorf("%w: no fields provided for update", ErrInvalidInput)
	}

	if req.Status != nil {
		switch *req.Status {
		case model.PostStatusDraft, model.PostStatusPublished, model.PostStatusArchived:
		default:
			return nil, fmt.Errorf("%w: unknown post status %q", ErrInvalidInput, *req.Status)
		}
	}

	fields := make(map[string]any)
	if req.Title != nil {
		fields["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Excerpt != nil {
		fields["excerpt"] = *req.Excerpt
	}
	if req.Content != nil {
		fields["content"] = *req.Content
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}

	updated, err := s.store.UpdatePostFields(ctx, postID, fields)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes a post; author or moderator and above.
func (s *PostService) Delete(ctx context.Context, actor *model.AuthUser, postID int64) error {
	post, err := s.store.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !canManagePost(actor, post) {
		return ErrForbidden
	}

	if err := s.store.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.log.Info("post deleted", "post_id", postID, "actor_id", actor.ID)
	return nil
}

func canManagePost(actor *model.AuthUser, post *model.Post) bool {
	if actor == nil {
		return false
	}
	return post.AuthorID == actor.ID || actor.Rank >= model.ModeratorRank
}
