package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/oarkflow/squealx"

	"github.com/linguahub/permission"
)

// SQLGrantStore persists the permission catalog and grant rows in SQL
// (squealx). It implements the engine's read interface plus the write side
// used for seeding.
type SQLGrantStore struct {
	db *squealx.DB
}

func NewSQLGrantStore(db *squealx.DB) *SQLGrantStore {
	return &SQLGrantStore{db: db}
}

func (s *SQLGrantStore) LoadPermissionTree(ctx context.Context) ([]permission.Permission, error) {
	q := `SELECT id, name, resource, action, service_id, type, priority, parent_id, path, level, is_wildcard, wildcard_pattern, inherits_from_parent, is_implicit, is_active FROM permissions`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("load permission tree: %w", err)
	}
	defer r.Close()
	out := make([]permission.Permission, 0)
	for r.Next() {
		var p permission.Permission
		var isWildcard, inherits, implicit, active int
		if err := r.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.ServiceID, &p.Type, &p.Priority, &p.ParentID, &p.Path, &p.Level, &isWildcard, &p.WildcardPattern, &inherits, &implicit, &active); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		p.IsWildcard = isWildcard != 0
		p.InheritsFromParent = inherits != 0
		p.IsImplicit = implicit != 0
		p.IsActive = active != 0
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLGrantStore) LoadRolePermissions(ctx context.Context, roleIDs []string) ([]permission.RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	params := map[string]any{}
	placeholders := make([]string, len(roleIDs))
	for i, id := range roleIDs {
		key := fmt.Sprintf("role_%d", i)
		placeholders[i] = ":" + key
		params[key] = id
	}
	q := `SELECT role_id, permission_id, group_id, conditions, valid_from, valid_until FROM role_permissions WHERE role_id IN (` + strings.Join(placeholders, ", ") + `)`
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	defer r.Close()
	out := make([]permission.RolePermission, 0)
	for r.Next() {
		var g permission.RolePermission
		var fromRaw, untilRaw interface{}
		if err := r.Scan(&g.RoleID, &g.PermissionID, &g.GroupID, &g.Conditions, &fromRaw, &untilRaw); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		g.ValidFrom = scanTime(fromRaw)
		g.ValidUntil = scanTime(untilRaw)
		out = append(out, g)
	}
	return out, nil
}

func (s *SQLGrantStore) SavePermission(ctx context.Context, p permission.Permission) error {
	q := `INSERT INTO permissions(id, name, resource, action, service_id, type, priority, parent_id, path, level, is_wildcard, wildcard_pattern, inherits_from_parent, is_implicit, is_active)
VALUES(:id, :name, :resource, :action, :service_id, :type, :priority, :parent_id, :path, :level, :is_wildcard, :wildcard_pattern, :inherits_from_parent, :is_implicit, :is_active)
ON CONFLICT(id) DO UPDATE SET name=:name, resource=:resource, action=:action, service_id=:service_id, type=:type, priority=:priority, parent_id=:parent_id, path=:path, level=:level, is_wildcard=:is_wildcard, wildcard_pattern=:wildcard_pattern, inherits_from_parent=:inherits_from_parent, is_implicit=:is_implicit, is_active=:is_active`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":                   p.ID,
		"name":                 p.Name,
		"resource":             p.Resource,
		"action":               p.Action,
		"service_id":           p.ServiceID,
		"type":                 p.Type,
		"priority":             p.Priority,
		"parent_id":            p.ParentID,
		"path":                 p.Path,
		"level":                p.Level,
		"is_wildcard":          boolToInt(p.IsWildcard),
		"wildcard_pattern":     p.WildcardPattern,
		"inherits_from_parent": boolToInt(p.InheritsFromParent),
		"is_implicit":          boolToInt(p.IsImplicit),
		"is_active":            boolToInt(p.IsActive),
	})
	return err
}

func (s *SQLGrantStore) SaveRole(ctx context.Context, r permission.Role) error {
	q := `INSERT INTO roles(id, name, group_id, is_system_role) VALUES(:id, :name, :group_id, :is_system_role)
ON CONFLICT(id) DO UPDATE SET name=:name, group_id=:group_id, is_system_role=:is_system_role`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             r.ID,
		"name":           r.Name,
		"group_id":       r.GroupID,
		"is_system_role": boolToInt(r.IsSystemRole),
	})
	return err
}

func (s *SQLGrantStore) SaveGrant(ctx context.Context, g permission.RolePermission) error {
	q := `INSERT INTO role_permissions(role_id, permission_id, group_id, conditions, valid_from, valid_until)
VALUES(:role_id, :permission_id, :group_id, :conditions, :valid_from, :valid_until)
ON CONFLICT(role_id, permission_id, group_id) DO UPDATE SET conditions=:conditions, valid_from=:valid_from, valid_until=:valid_until`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"role_id":       g.RoleID,
		"permission_id": g.PermissionID,
		"group_id":      g.GroupID,
		"conditions":    g.Conditions,
		"valid_from":    sqlNullTimeOrNil(g.ValidFrom),
		"valid_until":   sqlNullTimeOrNil(g.ValidUntil),
	})
	return err
}

func (s *SQLGrantStore) RevokeGrant(ctx context.Context, roleID, permissionID, groupID string) error {
	q := `DELETE FROM role_permissions WHERE role_id = :role_id AND permission_id = :permission_id AND group_id = :group_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"role_id":       roleID,
		"permission_id": permissionID,
		"group_id":      groupID,
	})
	return err
}
