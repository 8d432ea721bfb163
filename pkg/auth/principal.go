package auth

import (
	"fmt"
	"strings"

	"github.com/artpro/stockpulse/pkg/models"
)

// Principal is the authenticated caller of a request
type Principal struct {
	ExternalID string
	Email      string
	User       *models.User
	Role       string
}

// UserID returns the local user id, or zero when no user is attached
func (p *Principal) UserID() uint {
	if p == nil || p.User == nil {
		return 0
	}
	return p.User.ID
}

// Decision is the outcome of a capability check
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorize checks that principal holds one of roles. An empty role set
// allows any authenticated principal.
func Authorize(principal *Principal, roles ...string) Decision {
	if principal == nil || principal.User == nil {
		return Decision{Reason: "not authenticated"}
	}
	if len(roles) == 0 {
		return Decision{Allowed: true}
	}
	if principal.Role == "" {
		return Decision{Reason: "user has no role"}
	}
	for _, role := range roles {
		if principal.Role == role {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: fmt.Sprintf("requires role %s", strings.Join(roles, " or "))}
}
