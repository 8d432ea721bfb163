package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	logger zerolog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		logger: logger,
	}
}

// GetCurrentUser returns the authenticated principal
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"external_id": p.ExternalID,
		"email":       p.Email,
		"role":        p.Role,
		"user":        p.User,
	})
}
