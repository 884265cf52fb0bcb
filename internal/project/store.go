package project

import "context"

// Store describes the persistence operations the project services require.
// Every mutating method executes inside exactly one transaction; external
// synchronization is never part of that boundary.
type Store interface {
	GetProject(ctx context.Context, uuid string) (Project, error)
	GetProjectBySeq(ctx context.Context, seq int64) (Project, error)
	SetSensitiveInfo(ctx context.Context, seq int64) error

	ListRoles(ctx context.Context, projectSeq int64) ([]Role, error)
	GetRole(ctx context.Context, roleSeq int64) (Role, error)

	ListMemberships(ctx context.Context, projectSeq int64) ([]Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]Membership, error)
	InsertMembership(ctx context.Context, m Membership) error
	UpdateMembershipRole(ctx context.Context, projectSeq int64, userID string, roleSeq int64) error
	DeleteMembership(ctx context.Context, projectSeq int64, userID string) error

	ListRoleAuthorities(ctx context.Context, roleSeq int64) ([]RoleAuthorityMapping, error)
	// ReplaceRoleAuthorities installs the full authority set for a role in one
	// transaction: absent mappings are hard-deleted, previously INACTIVE ones
	// reactivated, new ones inserted.
	ReplaceRoleAuthorities(ctx context.Context, roleSeq int64, authorityIDs []string) error

	// TerminateProject runs the authoritative termination transaction:
	// deactivate the project roles' authority mappings, delete memberships,
	// delete role definitions, flip status to COMPLETED.
	TerminateProject(ctx context.Context, projectSeq int64) error
}
