package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maxlogvn/AiCMR/internal/model"
	"github.com/maxlogvn/AiCMR/internal/service"
)

type CSRFHandler struct {
	svc *service.CSRFService
}

func NewCSRFHandler(svc *service.CSRFService) *CSRFHandler {
	return &CSRFHandler{svc: svc}
}

// Token godoc
// @Summary Get the session's CSRF token
// @Description Establishes the session cookie when absent. The returned
// token must be echoed in the X-CSRF-Token header on state-changing calls.
// @Tags csrf
// @Produce json
// @Success 200 {object} model.CSRFTokenResponse
// @Router /api/v1/csrf-token [get]
func (h *CSRFHandler) Token(c *gin.Context) {
	sessionID := ""
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		if id, ok := h.svc.ParseSessionCookie(cookie); ok {
			sessionID = id
		}
	}

	if sessionID == "" {
		id, cookieValue := h.svc.NewSessionID()
		sessionID = id
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookieName, cookieValue, int(h.svc.SessionTTL().Seconds()), "/", "", false, true)
	}

	token, err := h.svc.GetOrCreate(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.CSRFTokenResponse{CSRFToken: token})
}
