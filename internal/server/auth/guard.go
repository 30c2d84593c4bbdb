package auth

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// RoleSet is the set of roles allowed through a guard.
type RoleSet []models.Role

var (
	AdminOnly = RoleSet{models.RoleAdmin}
	AnyUser   = RoleSet{models.RoleAdmin, models.RoleUser}
)

func (s RoleSet) Contains(r models.Role) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// DenyReason explains a denied Decision.
type DenyReason string

const (
	ReasonNone            DenyReason = ""
	ReasonUnauthenticated DenyReason = "unauthenticated"
	ReasonForbidden       DenyReason = "forbidden"
)

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Guard decides whether an identity may pass a role requirement.
type Guard struct {
	logger logging.Logger
}

func NewGuard(logger logging.Logger) *Guard {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Guard{logger: logger}
}

// Authorize checks identity against required. Forbidden decisions are logged
// at warn level together with logArgs (for example endpoint and method).
func (g *Guard) Authorize(ctx context.Context, identity *Identity, required RoleSet, logArgs ...any) Decision {
	if identity == nil {
		return Decision{Reason: ReasonUnauthenticated}
	}

	if !required.Contains(identity.Role) {
		args := append([]any{
			"user_id", identity.UserID,
			"role", string(identity.Role),
			"required_roles", required.Strings(),
		}, logArgs...)
		g.logger.Warn(ctx, "access denied", args...)
		return Decision{Reason: ReasonForbidden}
	}

	return Decision{Allowed: true}
}
