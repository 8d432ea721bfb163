package handlers

import (
	"errors"
	"net/http"

	"github.com/artpro/stockpulse/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PreferencesHandler handles preference and role requests
type PreferencesHandler struct {
	prefs  *services.PreferencesService
	logger zerolog.Logger
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(prefs *services.PreferencesService, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		prefs:  prefs,
		logger: logger,
	}
}

// UpdateRoleRequest represents a role change
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// GetPreferences returns the caller's preferences
func (h *PreferencesHandler) GetPreferences(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	prefs, err := h.prefs.GetOrCreate(c.Request.Context(), p.User)
	if err != nil {
		serverError(c, h.logger, err, "Failed to load preferences")
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences applies a partial update to the caller's preferences
func (h *PreferencesHandler) UpdatePreferences(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req services.PreferencesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	prefs, err := h.prefs.Update(c.Request.Context(), p.User, req)
	if errors.Is(err, services.ErrInvalidPreference) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		serverError(c, h.logger, err, "Failed to update preferences")
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// UpdateRole sets another user's role
func (h *PreferencesHandler) UpdateRole(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	prefs, err := h.prefs.SetRole(c.Request.Context(), userID, req.Role)
	switch {
	case errors.Is(err, services.ErrInvalidPreference):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role is required"})
		return
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case err != nil:
		serverError(c, h.logger, err, "Failed to update role")
		return
	}

	c.JSON(http.StatusOK, prefs)
}
