package models

import (
	"time"

	"github.com/google/uuid"
)

// OrgRole defines the role of a user within an organization.
type OrgRole string

const (
	// OrgRoleOwner has full control over the organization.
	OrgRoleOwner OrgRole = "owner"
	// OrgRoleAdmin can manage setup, credentials, and connection state.
	OrgRoleAdmin OrgRole = "admin"
	// OrgRoleMember can use tenant-store data and run non-privileged checks.
	OrgRoleMember OrgRole = "member"
)

// roleRank orders roles for privilege comparison: member < admin < owner.
var roleRank = map[OrgRole]int{
	OrgRoleMember: 0,
	OrgRoleAdmin:  1,
	OrgRoleOwner:  2,
}

// NormalizeRole maps a stored role string onto the closed role set.
// Unrecognized values collapse to member, so a corrupted or legacy role can
// never grant elevated access.
func NormalizeRole(role string) OrgRole {
	switch OrgRole(role) {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleMember:
		return OrgRole(role)
	default:
		return OrgRoleMember
	}
}

// Rank returns the privilege rank of the role. Unknown roles rank as member.
func (r OrgRole) Rank() int {
	if rank, ok := roleRank[r]; ok {
		return rank
	}
	return roleRank[OrgRoleMember]
}

// AtLeast reports whether the role dominates the required role.
func (r OrgRole) AtLeast(required OrgRole) bool {
	return r.Rank() >= required.Rank()
}

// OrgMembership represents a user's membership in an organization.
type OrgMembership struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	OrgID     uuid.UUID `json:"org_id"`
	Role      OrgRole   `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrgMembership creates a new OrgMembership.
func NewOrgMembership(userID, orgID uuid.UUID, role OrgRole) *OrgMembership {
	now := time.Now()
	return &OrgMembership{
		ID:        uuid.New(),
		UserID:    userID,
		OrgID:     orgID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
