package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/maxlogvn/AiCMR/internal/model"
	"github.com/maxlogvn/AiCMR/internal/service"
)

type PostHandler struct {
	svc *service.PostService
}

func NewPostHandler(svc *service.PostService) *PostHandler {
	return &PostHandler{svc: svc}
}

// ListPublished godoc
// @Summary List published posts
// @Tags posts
// @Produce json
// @Success 200 {object} model.PostListResponse
// @Router /api/v1/posts [get]
func (h *PostHandler) ListPublished(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	posts, total, err := h.svc.ListPublished(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postList(posts, total, offset, limit))
}

// ListAll godoc
// @Summary List posts with any status (moderator+)
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.PostListResponse
// @Router /api/v1/admin/posts [get]
func (h *PostHandler) ListAll(c *gin.Context) {
	actor := GetAuthUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	posts, total, err := h.svc.ListAll(c.Request.Context(), actor, c.Query("status"), offset, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postList(posts, total, offset, limit))
}

// GetBySlug godoc
// @Summary Get a published post by slug
// @Tags posts
// @Produce json
// @Success 200 {object} model.PostResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/posts/{slug} [get]
func (h *PostHandler) GetBySlug(c *gin.Context) {
	post, err := h.svc.GetPublished(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewPostResponse(post))
}

// Create godoc
// @Summary Create a draft post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.PostCreateRequest true "Post content"
// @Success 201 {object} model.PostResponse
// @Failure 409 {object} model.ErrorResponse
// @Router /api/v1/posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	actor := GetAuthUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req model.PostCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	post, err := h.svc.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.NewPostResponse(post))
}

// Update godoc
// @Summary Update a post (authors freely, moderators status only)
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.PostUpdateRequest true "Fields to change"
// @Success 200 {object} model.PostResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/posts/{id} [patch]
func (h *PostHandler) Update(c *gin.Context) {
	actor := GetAuthUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	var req model.PostUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	post, err := h.svc.Update(c.Request.Context(), actor, postID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewPostResponse(post))
}

// Delete godoc
// @Summary Delete a post (author or moderator+)
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.MessageResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	actor := GetAuthUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), actor, postID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.MessageResponse{Message: "post deleted"})
}

func postList(posts []model.Post, total int64, offset, limit int) model.PostListResponse {
	out := make([]model.PostResponse, 0, len(posts))
	for i := range posts {
		out = append(out, model.NewPostResponse(&posts[i]))
	}
	return model.PostListResponse{
		Posts: out,
		Meta:  model.ListMeta{Total: total, Offset: offset, Limit: limit},
	}
}
