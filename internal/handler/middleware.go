package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maxlogvn/AiCMR/internal/model"
	"github.com/maxlogvn/AiCMR/internal/service"
)

const (
	authUserKey       = "auth_user"
	sessionCookieName = "aicmr_session"
	csrfHeaderName    = "X-CSRF-Token"
)

func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		user, err := authService.VerifyAccess(token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(authUserKey, user)
		c.Next()
	}
}

func GetAuthUser(c *gin.Context) *model.AuthUser {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.AuthUser); ok {
			return user
		}
	}
	return nil
}

// RequireMinRank gates a route on the caller's privilege level. Runs after
// AuthMiddleware.
func RequireMinRank(minRank int) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetAuthUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if user.Rank < minRank {
			c.JSON(http.StatusForbidden, gin.H{"error": "not enough permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CSRFMiddleware applies the double-submit check to state-changing routes.
// The session ID comes from the signed cookie; the client token from the
// X-CSRF-Token header.
func CSRFMiddleware(csrf *service.CSRFService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := ""
		if cookie, err := c.Cookie(sessionCookieName); err == nil {
			if id, ok := csrf.ParseSessionCookie(cookie); ok {
				sessionID = id
			}
		}

		if err := csrf.Validate(c.Request.Context(), sessionID, c.GetHeader(csrfHeaderName)); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware throttles a route per client IP with a fixed window.
func RateLimitMiddleware(limiter *service.RateLimiter, route string, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Allow(c.Request.Context(), route+":ip:"+c.ClientIP(), max); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+csrfHeaderName)
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
