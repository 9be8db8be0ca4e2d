package handlers

import (
	"net/http"

	"dishfinder/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Logout handles POST /api/session/logout. The departing user's location,
// distance cache and prompt flag are removed before the token is dropped.
func (h *SessionHandler) Logout(c *gin.Context) {
	svc := middleware.GetProfile(c)
	if err := svc.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// GetSession handles GET /api/session and reports the active user scope.
func (h *SessionHandler) GetSession(c *gin.Context) {
	svc := middleware.GetProfile(c)
	sc := svc.Scope(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"scope": sc, "authenticated": svc.Session().Token(c.Request.Context()) != ""})
}
