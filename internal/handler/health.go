package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/model"
)

type HealthHandler struct {
	pg  *db.Postgres
	rdb redis.UniversalClient
}

func NewHealthHandler(pg *db.Postgres, rdb redis.UniversalClient) *HealthHandler {
	return &HealthHandler{pg: pg, rdb: rdb}
}

// Health godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} model.HealthResponse
// @Failure 503 {object} model.HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := model.HealthResponse{Status: "healthy", Postgres: "ok", Redis: "ok"}
	status := http.StatusOK

	if err := h.pg.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Postgres = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		resp.Status = "unhealthy"
		resp.Redis = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, resp)
}

// Root returns basic API info.
func Root(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, model.RootResponse{
			Message: "Welcome to AiCMR API",
			Version: version,
		})
	}
}
