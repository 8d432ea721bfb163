package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/artpro/stockpulse/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// UserHandler handles user profile requests
type UserHandler struct {
	db     *gorm.DB
	users  *database.UserRepository
	prefs  *services.PreferencesService
	logger zerolog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(db *gorm.DB, prefs *services.PreferencesService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		db:     db,
		users:  database.NewUserRepository(db),
		prefs:  prefs,
		logger: logger,
	}
}

// ProfileResponse is a user with their preferences
type ProfileResponse struct {
	*models.User
	Preferences *models.Preferences `json:"preferences,omitempty"`
}

// UpdateProfileRequest represents a profile update
type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// GetProfile returns the caller's profile, creating default preferences on first access
func (h *UserHandler) GetProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	prefs, err := h.prefs.GetOrCreate(c.Request.Context(), p.User)
	if err != nil {
		serverError(c, h.logger, err, "Failed to load preferences")
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{User: p.User, Preferences: prefs})
}

// UpdateProfile updates the caller's name and email
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user := *p.User
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			user.Name = nil
		} else {
			user.Name = &name
		}
	}
	if req.Email != nil {
		email, ok := bareAddress(*req.Email)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
			return
		}
		user.Email = email
	}

	if err := h.users.Save(c.Request.Context(), &user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email is already in use"})
			return
		}
		serverError(c, h.logger, err, "Failed to update profile")
		return
	}

	prefs, err := h.prefs.GetOrCreate(c.Request.Context(), &user)
	if err != nil {
		serverError(c, h.logger, err, "Failed to load preferences")
		return
	}

	h.logger.Info().Uint("user_id", user.ID).Msg("Profile updated")
	c.JSON(http.StatusOK, ProfileResponse{User: &user, Preferences: prefs})
}

// ListUsers returns every user
func (h *UserHandler) ListUsers(c *gin.Context) {
	var users []models.User
	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&users).Error; err != nil {
		serverError(c, h.logger, err, "Failed to fetch users")
		return
	}

	c.JSON(http.StatusOK, users)
}

// GetUser returns one user, with preferences when they exist
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		serverError(c, h.logger, err, "Failed to fetch user")
		return
	}

	resp := ProfileResponse{User: user}
	prefs, err := h.prefs.Find(c.Request.Context(), id)
	switch {
	case err == nil:
		resp.Preferences = prefs
	case !errors.Is(err, services.ErrPreferencesNotFound):
		serverError(c, h.logger, err, "Failed to fetch preferences")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// bareAddress normalizes s and accepts it only when it is a plain address,
// not a display-name form such as "Bob <bob@example.com>"
func bareAddress(s string) (string, bool) {
	email := models.NormalizeEmail(s)
	if email == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	return email, true
}
