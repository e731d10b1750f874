package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tuttiud/platform/internal/apperr"
	"github.com/tuttiud/platform/internal/models"
)

// MembershipStore is the control-store interface the guard needs.
// A (nil, nil) return means no membership exists.
type MembershipStore interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID uuid.UUID) (*models.OrgMembership, error)
}

// Access is the result of a successful guard resolution. Store is a handle
// for further control-store queries only; it must never be used against a
// tenant's own store.
type Access struct {
	UserID uuid.UUID
	Role   models.OrgRole
	Store  MembershipStore
}

// Guard resolves a bearer token to an identity, looks up that identity's
// role within an organization, and enforces a minimum role.
type Guard struct {
	store    MembershipStore
	verifier TokenVerifier
	logger   zerolog.Logger
}

// NewGuard creates a Guard.
func NewGuard(store MembershipStore, verifier TokenVerifier, logger zerolog.Logger) *Guard {
	return &Guard{
		store:    store,
		verifier: verifier,
		logger:   logger.With().Str("component", "access_guard").Logger(),
	}
}

// Resolve authenticates the Authorization header and authorizes the user
// against the organization at the required role.
func (g *Guard) Resolve(ctx context.Context, authorization string, orgID uuid.UUID, required models.OrgRole) (*Access, error) {
	if orgID == uuid.Nil {
		return nil, apperr.New(apperr.KindBadRequest, "organization ID is required")
	}

	token := ExtractBearerToken(authorization)
	if token == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "missing or malformed authorization header")
	}

	userID, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.logger.Debug().Str("org_id", orgID.String()).Msg("bearer token rejected")
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid or expired token")
	}

	membership, err := g.store.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknownUpstream, "membership lookup failed", err)
	}
	if membership == nil {
		g.logger.Debug().
			Str("user_id", userID.String()).
			Str("org_id", orgID.String()).
			Msg("no membership for organization")
		return nil, apperr.New(apperr.KindForbidden, "not a member of this organization")
	}

	role := models.NormalizeRole(string(membership.Role))
	if !role.AtLeast(required) {
		g.logger.Debug().
			Str("user_id", userID.String()).
			Str("org_id", orgID.String()).
			Str("role", string(role)).
			Str("required", string(required)).
			Msg("insufficient role")
		return nil, apperr.New(apperr.KindForbidden, "insufficient permissions for this operation")
	}

	return &Access{UserID: userID, Role: role, Store: g.store}, nil
}
