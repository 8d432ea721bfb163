package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/artpro/stockpulse/pkg/auth"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/artpro/stockpulse/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const principalKey = "principal"

// Reconciler maps a verified identity onto a local user
type Reconciler interface {
	Reconcile(ctx context.Context, identity services.Identity) (*models.User, error)
}

// PreferencesLoader loads or lazily creates a user's preferences
type PreferencesLoader interface {
	GetOrCreate(ctx context.Context, user *models.User) (*models.Preferences, error)
}

// AuthMiddleware verifies the bearer token, reconciles the identity and
// stores the resulting principal on the context
func AuthMiddleware(verifier auth.TokenVerifier, reconciler Reconciler, prefs PreferencesLoader, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, auth.ErrVerifierNotConfigured) {
				logger.Error().Err(err).Msg("Token verifier not configured")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		if identity.Email == "" || !identity.EmailVerified {
			logger.Warn().Str("external_id", identity.Subject).Msg("Rejected token without verified email")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "A verified email address is required"})
			return
		}

		user, err := reconciler.Reconcile(c.Request.Context(), services.Identity{
			ExternalID: identity.Subject,
			Email:      identity.Email,
			Name:       identity.Name,
		})
		switch {
		case errors.Is(err, services.ErrMissingClaims):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is missing required claims"})
			return
		case errors.Is(err, services.ErrIdentityConflict):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Account is being created by another request, please retry"})
			return
		case err != nil:
			logger.Error().Err(err).Str("external_id", identity.Subject).Msg("Failed to reconcile identity")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}

		role := models.RoleUser
		p, err := prefs.GetOrCreate(c.Request.Context(), user)
		if err != nil {
			logger.Error().Err(err).Uint("user_id", user.ID).Msg("Failed to load preferences")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if p.Role != "" {
			role = p.Role
		}

		c.Set(principalKey, &auth.Principal{
			ExternalID: identity.Subject,
			Email:      user.Email,
			User:       user,
			Role:       role,
		})
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by AuthMiddleware, or nil
func PrincipalFrom(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*auth.Principal)
	return principal
}

// RequireRole rejects principals that hold none of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := auth.Authorize(PrincipalFrom(c), roles...)
		if !decision.Allowed {
			status := http.StatusForbidden
			if PrincipalFrom(c) == nil {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{"error": decision.Reason})
			return
		}
		c.Next()
	}
}
