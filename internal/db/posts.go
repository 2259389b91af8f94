package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxlogvn/AiCMR/internal/model"
)

const postColumns = "id, title, slug, excerpt, content, status, author_id, view_count, published_at, created_at, updated_at"

func scanPost(row interface{ Scan(...any) error }) (*model.Post, error) {
	var post model.Post
	err := row.Scan(
		&post.ID,
		&post.Title,
		&post.Slug,
		&post.Excerpt,
		&post.Content,
		&post.Status,
		&post.AuthorID,
		&post.ViewCount,
		&post.PublishedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (db *Postgres) CreatePost(ctx context.Context, post *model.Post) (*model.Post, error) {
	query := `
		INSERT INTO posts (title, slug, excerpt, content, status, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + postColumns
	created, err := scanPost(db.Pool.QueryRow(ctx, query,
		post.Title, post.Slug, post.Excerpt, post.Content, post.Status, post.AuthorID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

func (db *Postgres) GetPostByID(ctx context.Context, postID int64) (*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(db.Pool.QueryRow(ctx, query, postID))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

func (db *Postgres) GetPostBySlug(ctx context.Context, slug string) (*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = $1`
	post, err := scanPost(db.Pool.QueryRow(ctx, query, slug))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

// ListPosts returns posts filtered by status ("" means any), newest first.
func (db *Postgres) ListPosts(ctx context.Context, status string, offset, limit int) ([]model.Post, int64, error) {
	where := ""
	countArgs := []any{}
	listArgs := []any{offset, limit}
	if status != "" {
		where = "WHERE status = $1"
		countArgs = append(countArgs, status)
		listArgs = []any{status, offset, limit}
	}

	var total int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + postColumns + ` FROM posts ` + where + ` ORDER BY created_at DESC`
	if status != "" {
		query += ` OFFSET $2 LIMIT $3`
	} else {
		query += ` OFFSET $1 LIMIT $2`
	}

	rows, err := db.Pool.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, *post)
	}
	return posts, total, rows.Err()
}

// UpdatePostFields applies a partial update; publishing stamps published_at.
func (db *Postgres) UpdatePostFields(ctx context.Context, postID int64, fields map[string]any) (*model.Post, error) {
	allowed := map[string]bool{"title": true, "excerpt": true, "content": true, "status": true}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	args = append(args, postID)
	for col, val := range fields {
		if !allowed[col] {
			return nil, fmt.Errorf("unknown post column %q", col)
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		if col == "status" && val == model.PostStatusPublished {
			sets = append(sets, "published_at = COALESCE(published_at, NOW())")
		}
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	query := `
		UPDATE posts
		SET ` + strings.Join(sets, ", ") + `, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + postColumns
	post, err := scanPost(db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

func (db *Postgres) DeletePost(ctx context.Context, postID int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
