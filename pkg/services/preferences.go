package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	// ErrInvalidPreference wraps validation failures on a preferences update
	ErrInvalidPreference = errors.New("invalid preference")
	// ErrUserNotFound is returned when the target user does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrPreferencesNotFound is returned when a user has no preferences row yet
	ErrPreferencesNotFound = errors.New("preferences not found")
)

// PreferencesUpdate carries the optional fields of a preferences update
type PreferencesUpdate struct {
	Theme                 *string `json:"theme"`
	NotificationFrequency *string `json:"notification_frequency"`
	EmailNotifications    *bool   `json:"email_notifications"`
	DefaultCurrency       *string `json:"default_currency"`
}

// PreferencesService manages user preferences and roles
type PreferencesService struct {
	db          *gorm.DB
	adminEmails map[string]bool
	logger      zerolog.Logger
}

// NewPreferencesService creates a new preferences service. Users whose email
// is in adminEmails start with the admin role.
func NewPreferencesService(db *gorm.DB, adminEmails []string, logger zerolog.Logger) *PreferencesService {
	admins := make(map[string]bool, len(adminEmails))
	for _, email := range adminEmails {
		admins[models.NormalizeEmail(email)] = true
	}
	return &PreferencesService{
		db:          db,
		adminEmails: admins,
		logger:      logger,
	}
}

// Find returns the stored preferences for userID
func (s *PreferencesService) Find(ctx context.Context, userID uint) (*models.Preferences, error) {
	var prefs models.Preferences
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPreferencesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return &prefs, nil
}

// GetOrCreate returns the user's preferences, creating the defaults on first access
func (s *PreferencesService) GetOrCreate(ctx context.Context, user *models.User) (*models.Preferences, error) {
	prefs, err := s.Find(ctx, user.ID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, ErrPreferencesNotFound) {
		return nil, err
	}

	created := models.DefaultPreferences(user.ID)
	if s.adminEmails[models.NormalizeEmail(user.Email)] {
		created.Role = models.RoleAdmin
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		// Another request created the row first
		if prefs, findErr := s.Find(ctx, user.ID); findErr == nil {
			return prefs, nil
		}
		return nil, fmt.Errorf("failed to create preferences: %w", err)
	}

	s.logger.Debug().Uint("user_id", user.ID).Str("role", created.Role).Msg("Created default preferences")
	return &created, nil
}

// Update applies update to the user's preferences
func (s *PreferencesService) Update(ctx context.Context, user *models.User, update PreferencesUpdate) (*models.Preferences, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	prefs, err := s.GetOrCreate(ctx, user)
	if err != nil {
		return nil, err
	}

	if update.Theme != nil {
		prefs.Theme = *update.Theme
	}
	if update.NotificationFrequency != nil {
		prefs.NotificationFrequency = *update.NotificationFrequency
	}
	if update.EmailNotifications != nil {
		prefs.EmailNotifications = *update.EmailNotifications
	}
	if update.DefaultCurrency != nil {
		prefs.DefaultCurrency = strings.ToUpper(strings.TrimSpace(*update.DefaultCurrency))
	}

	if err := s.db.WithContext(ctx).Save(prefs).Error; err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}
	return prefs, nil
}

// SetRole changes a user's role
func (s *PreferencesService) SetRole(ctx context.Context, userID uint, role string) (*models.Preferences, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidPreference)
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	prefs, err := s.GetOrCreate(ctx, &user)
	if err != nil {
		return nil, err
	}

	prefs.Role = role
	if err := s.db.WithContext(ctx).Save(prefs).Error; err != nil {
		return nil, fmt.Errorf("failed to save role: %w", err)
	}

	s.logger.Info().Uint("user_id", userID).Str("role", role).Msg("User role updated")
	return prefs, nil
}

// Validate checks the enum and currency fields of an update
func (u PreferencesUpdate) Validate() error {
	if u.Theme != nil {
		switch *u.Theme {
		case models.ThemeLight, models.ThemeDark, models.ThemeSystem:
		default:
			return fmt.Errorf("%w: theme must be one of: light, dark, system", ErrInvalidPreference)
		}
	}
	if u.NotificationFrequency != nil {
		switch *u.NotificationFrequency {
		case models.FrequencyRealTime, models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyNever:
		default:
			return fmt.Errorf("%w: notification frequency must be one of: real_time, daily, weekly, never", ErrInvalidPreference)
		}
	}
	if u.DefaultCurrency != nil {
		code := strings.ToUpper(strings.TrimSpace(*u.DefaultCurrency))
		if code == "" || money.GetCurrency(code) == nil {
			return fmt.Errorf("%w: default currency %q is not a known currency code", ErrInvalidPreference, *u.DefaultCurrency)
		}
	}
	return nil
}
