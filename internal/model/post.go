package model

import "time"

// Post statuses follow the editorial lifecycle: draft -> published -> archived.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
	PostStatusArchived  = "archived"
)

type Post struct {
	ID          int64
	Title       string
	Slug        string
	Excerpt     string
	Content     string
	Status      string
	AuthorID    int64
	ViewCount   int64
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type PostCreateRequest struct {
	Title   string `json:"title" binding:"required"`
	Slug    string `json:"slug" binding:"required"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content" binding:"required"`
}

type PostUpdateRequest struct {
	Title   *string `json:"title"`
	Excerpt *string `json:"excerpt"`
	Content *string `json:"content"`
	Status  *string `json:"status"`
}

func (r PostUpdateRequest) Fields() []string {
	var fields []string
	if r.Title != nil {
		fields = append(fields, "title")
	}
	if r.Excerpt != nil {
		fields = append(fields, "excerpt")
	}
	if r.Content != nil {
		fields = append(fields, "content")
	}
	if r.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}

type PostResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	AuthorID    int64      `json:"author_id"`
	ViewCount   int64      `json:"view_count"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewPostResponse(p *Post) PostResponse {
	return PostResponse{
		ID:          p.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Excerpt:     p.Excerpt,
		Content:     p.Content,
		Status:      p.Status,
		AuthorID:    p.AuthorID,
		ViewCount:   p.ViewCount,
		PublishedAt: p.PublishedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
