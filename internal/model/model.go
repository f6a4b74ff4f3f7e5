// Package model holds the persistent entities of the authorization engine:
// principals and their variants, the resource hierarchy, roles, permissions,
// and the grants that bind them together. The engine never switches on a
// principal's concrete variant in decision logic — only administrative
// operations (creating a user, adding a group member) care which table an
// extension row lives in.
package model

import "time"

// PrincipalType is a closed enumeration seeded once by the core seeder.
type PrincipalType struct {
	ID   string
	Name string
}

// Well-known principal type names. The seeder inserts exactly these.
const (
	PrincipalTypeUser           = "user"
	PrincipalTypeServiceAccount = "service_account"
	PrincipalTypeGroup          = "group"
	PrincipalTypeAgent          = "agent"
)

// Principal is the abstract identity any grant can be attached to. Concrete
// shape (human user, group, service account, agent) lives in a separate
// one-to-one extension row keyed by PrincipalID.
type Principal struct {
	ID              string
	PrincipalTypeID string
	DisplayName     string
	OrganizationID  string
	ExternalRef     string
	CreatedAt       time.Time
}

// User extends a Principal of type "user".
type User struct {
	ID          string
	PrincipalID string
	Email       string
	CreatedAt   time.Time
}

// Agent extends a Principal of type "agent" — an automated, non-human caller.
type Agent struct {
	ID          string
	PrincipalID string
	Description string
	CreatedAt   time.Time
}

// ServiceAccount extends a Principal of type "service_account".
type ServiceAccount struct {
	ID          string
	PrincipalID string
	Owner       string
	CreatedAt   time.Time
}

// UserGroup extends a Principal of type "group". Grants placed on the
// group's PrincipalID confer access to every member.
type UserGroup struct {
	ID          string
	PrincipalID string
	Name        string
	CreatedAt   time.Time
}

// UserGroupMembership links a member principal to a group. The member's
// principal type must never be "group" — nested groups are rejected at
// insertion, not walked around at read time.
type UserGroupMembership struct {
	PrincipalID string
	UserGroupID string
	CreatedAt   time.Time
}

// ResourceType names a class of resource, e.g. "root", "agency", "project".
type ResourceType struct {
	ID   string
	Name string
}

// Resource is a node in the hierarchy forest grants attach to. Exactly one
// resource has a nil ParentID: the configured root.
type Resource struct {
	ID             string
	ParentID       *string
	Name           string
	ResourceTypeID string
	IsActive       bool
	CreatedAt      time.Time
}

// Role is a named, stable bundle of permissions.
type Role struct {
	ID        string
	Key       string
	Name      string
	IsVirtual bool
}

// Permission is a capability key gating an operation. A non-nil
// ResourceTypeID scopes the permission to resources of that type; the
// cascade that computes accessible resources stays type-agnostic and only
// the final membership test applies this filter.
type Permission struct {
	ID             string
	Key            string
	Name           string
	ResourceTypeID *string
}

// RolePermission is the role-to-permission many-to-many join.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// Grant is the sole source of authorization: it binds a principal to a role
// at a resource, optionally bounded in time.
type Grant struct {
	ID            string
	PrincipalID   string
	ResourceID    string
	RoleID        string
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
	CreatedAt     time.Time
}

// ActiveAt reports whether the grant holds at instant t.
func (g Grant) ActiveAt(t time.Time) bool {
	if g.EffectiveFrom != nil && t.Before(*g.EffectiveFrom) {
		return false
	}
	if g.EffectiveTo != nil && !t.Before(*g.EffectiveTo) {
		return false
	}
	return true
}
