package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingClaims is returned when the identity lacks a subject or email
	ErrMissingClaims = errors.New("identity is missing required claims")
	// ErrIdentityConflict is returned when a concurrent signup could not be resolved
	ErrIdentityConflict = errors.New("identity conflicts with an existing user")
)

// Identity is a verified external identity to reconcile
type Identity struct {
	ExternalID string
	Email      string
	Name       string
}

// UserStore is the persistence the reconciler needs
type UserStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
}

// IdentityReconciler maps external identities onto local users
type IdentityReconciler struct {
	users  UserStore
	logger zerolog.Logger
}

// NewIdentityReconciler creates a new reconciler
func NewIdentityReconciler(users UserStore, logger zerolog.Logger) *IdentityReconciler {
	return &IdentityReconciler{
		users:  users,
		logger: logger,
	}
}

// Reconcile finds or creates the local user for identity. It matches on the
// external id first, then on email (re-linking the external id), and creates
// a user otherwise. A write rejected by a unique constraint is retried once,
// which resolves two first logins racing on the same identity.
func (r *IdentityReconciler) Reconcile(ctx context.Context, identity Identity) (*models.User, error) {
	identity.ExternalID = strings.TrimSpace(identity.ExternalID)
	identity.Email = models.NormalizeEmail(identity.Email)
	identity.Name = strings.TrimSpace(identity.Name)

	if identity.ExternalID == "" || identity.Email == "" {
		return nil, ErrMissingClaims
	}

	for attempt := 0; attempt < 2; attempt++ {
		user, err := r.reconcile(ctx, identity)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
		r.logger.Warn().
			Err(err).
			Str("external_id", identity.ExternalID).
			Int("attempt", attempt+1).
			Msg("User write conflicted, retrying lookup")
	}

	return nil, fmt.Errorf("%w: %s", ErrIdentityConflict, identity.Email)
}

func (r *IdentityReconciler) reconcile(ctx context.Context, identity Identity) (*models.User, error) {
	user, err := r.users.FindByExternalID(ctx, identity.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to find user by external id: %w", err)
	}

	user, err = r.users.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		previous := user.ExternalID
		user.ExternalID = identity.ExternalID
		if identity.Name != "" && (user.Name == nil || *user.Name == "") {
			name := identity.Name
			user.Name = &name
		}
		if err := r.users.Save(ctx, user); err != nil {
			return nil, err
		}
		r.logger.Info().
			Uint("user_id", user.ID).
			Str("previous_external_id", previous).
			Str("external_id", identity.ExternalID).
			Msg("Relinked user to new external identity")
		return user, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	user = &models.User{
		ExternalID: identity.ExternalID,
		Email:      identity.Email,
	}
	if identity.Name != "" {
		name := identity.Name
		user.Name = &name
	}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, err
	}

	r.logger.Info().Uint("user_id", user.ID).Str("external_id", identity.ExternalID).Msg("Created user for new identity")
	return user, nil
}
