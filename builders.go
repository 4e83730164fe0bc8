package permission

import (
	"strings"
	"time"
)

// Fluent builders for catalog nodes, roles and grants, used by config
// seeding and tests.

// PermissionBuilder builds a Permission node.
type PermissionBuilder struct {
	p Permission
}

func NewPermissionBuilder(id, name string) *PermissionBuilder {
	return &PermissionBuilder{p: Permission{ID: id, Name: name, IsActive: true}}
}

func (b *PermissionBuilder) Resource(r string) *PermissionBuilder { b.p.Resource = r; return b }
func (b *PermissionBuilder) Action(a string) *PermissionBuilder   { b.p.Action = a; return b }
func (b *PermissionBuilder) Service(s string) *PermissionBuilder  { b.p.ServiceID = s; return b }
func (b *PermissionBuilder) Priority(p int) *PermissionBuilder    { b.p.Priority = p; return b }
func (b *PermissionBuilder) Inactive() *PermissionBuilder         { b.p.IsActive = false; return b }
func (b *PermissionBuilder) Implicit() *PermissionBuilder         { b.p.IsImplicit = true; return b }

// Parent links the node under a parent and derives Path and Level from it.
// Names given as full token paths keep their own path; leaf tokens are
// prefixed with the parent's.
func (b *PermissionBuilder) Parent(parent *Permission) *PermissionBuilder {
	b.p.ParentID = parent.ID
	b.p.Level = parent.Level + 1
	if strings.HasPrefix(b.p.Name, parent.Path+TokenDelimiter) {
		b.p.Path = b.p.Name
	} else {
		b.p.Path = parent.Path + TokenDelimiter + b.p.Name
	}
	return b
}

// Inherits marks grants on this node as covering its descendants.
func (b *PermissionBuilder) Inherits() *PermissionBuilder {
	b.p.InheritsFromParent = true
	return b
}

// Wildcard marks the node as a wildcard grant carrying the given pattern.
func (b *PermissionBuilder) Wildcard(pattern string) *PermissionBuilder {
	b.p.IsWildcard = true
	b.p.WildcardPattern = pattern
	return b
}

func (b *PermissionBuilder) Build() Permission {
	if b.p.Path == "" {
		b.p.Path = b.p.Name
	}
	return b.p
}

// RoleBuilder builds a Role.
type RoleBuilder struct {
	r Role
}

func NewRoleBuilder(id, name string) *RoleBuilder {
	return &RoleBuilder{r: Role{ID: id, Name: name}}
}

func (b *RoleBuilder) Group(groupID string) *RoleBuilder { b.r.GroupID = groupID; return b }
func (b *RoleBuilder) System() *RoleBuilder              { b.r.IsSystemRole = true; return b }
func (b *RoleBuilder) Build() Role                       { return b.r }

// GrantBuilder builds a RolePermission row.
type GrantBuilder struct {
	g RolePermission
}

func NewGrantBuilder(roleID, permissionID string) *GrantBuilder {
	return &GrantBuilder{g: RolePermission{RoleID: roleID, PermissionID: permissionID}}
}

func (b *GrantBuilder) Group(groupID string) *GrantBuilder { b.g.GroupID = groupID; return b }

// Conditions attaches a serialized predicate blob.
func (b *GrantBuilder) Conditions(raw string) *GrantBuilder { b.g.Conditions = raw; return b }

func (b *GrantBuilder) ValidFrom(t time.Time) *GrantBuilder  { b.g.ValidFrom = t; return b }
func (b *GrantBuilder) ValidUntil(t time.Time) *GrantBuilder { b.g.ValidUntil = t; return b }
func (b *GrantBuilder) Build() RolePermission                { return b.g }
