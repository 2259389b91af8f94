package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maxlogvn/AiCMR/internal/service"
)

// writeError is the single point where service errors become HTTP statuses.
// Nothing below the handler layer decides HTTP semantics.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, service.ErrExpiredToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case errors.Is(err, service.ErrInvalidRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
	case errors.Is(err, service.ErrInactiveUser):
		c.JSON(http.StatusForbidden, gin.H{"error": "inactive user"})
	case errors.Is(err, service.ErrMissingCSRFToken),
		errors.Is(err, service.ErrNoCSRFSession),
		errors.Is(err, service.ErrCSRFMismatch):
		// One client-facing message for all CSRF failures.
		c.JSON(http.StatusForbidden, gin.H{"error": "csrf validation failed"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not enough permissions"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}
