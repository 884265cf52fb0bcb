// Package project holds the authoritative local model: projects, roles,
// memberships and role-authority mappings, plus the services that mutate them
// under the admin-coverage invariants and drive backend synchronization.
package project

import "time"

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	StatusRequested ProjectStatus = "REQUESTED"
	StatusOngoing   ProjectStatus = "ONGOING"
	StatusCompleted ProjectStatus = "COMPLETED"
)

// RoleType distinguishes built-in roles from user-defined ones.
type RoleType string

const (
	RoleTypeDefault RoleType = "DEFAULT"
	RoleTypeCustom  RoleType = "CUSTOM"
)

// ActiveStatus marks roles and role-authority mappings as usable or retired.
type ActiveStatus string

const (
	StatusActive   ActiveStatus = "ACTIVE"
	StatusInactive ActiveStatus = "INACTIVE"
)

// Project is the authoritative project record. Seq is the stable numeric id
// embedded in policy patterns and group names; UUID is the external-facing id.
type Project struct {
	Seq           int64
	UUID          string
	Name          string
	Status        ProjectStatus
	SensitiveInfo bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Role is a named permission bundle, either portal-scope (ProjectSeq nil) or
// scoped to one project.
type Role struct {
	Seq        int64
	UUID       string
	Name       string
	Type       RoleType
	ProjectSeq *int64
	Status     ActiveStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Membership ties a user to exactly one active role within a project.
type Membership struct {
	ProjectSeq int64
	UserID     string
	RoleSeq    int64
	CreatedAt  time.Time
}

// RoleAuthorityMapping grants an authority to a role. Reactivating an
// INACTIVE mapping is cheaper than recreating it.
type RoleAuthorityMapping struct {
	RoleSeq     int64
	AuthorityID string
	Status      ActiveStatus
}
