package stores

import (
	"context"
	"sync"

	"github.com/linguahub/permission"
)

// MemoryGrantStore keeps the permission catalog and grant rows in memory.
// It implements both the read side consumed by the engine and the write side
// used for seeding, so tests and small deployments need no database.
type MemoryGrantStore struct {
	mu          sync.RWMutex
	permissions map[string]permission.Permission
	roles       map[string]permission.Role
	grants      []permission.RolePermission
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{
		permissions: make(map[string]permission.Permission),
		roles:       make(map[string]permission.Role),
	}
}

func (s *MemoryGrantStore) LoadPermissionTree(ctx context.Context) ([]permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryGrantStore) LoadRolePermissions(ctx context.Context, roleIDs []string) ([]permission.RolePermission, error) {
	want := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]permission.RolePermission, 0)
	for _, g := range s.grants {
		if want[g.RoleID] {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *MemoryGrantStore) SavePermission(ctx context.Context, p permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[p.ID] = p
	return nil
}

func (s *MemoryGrantStore) SaveRole(ctx context.Context, r permission.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryGrantStore) SaveGrant(ctx context.Context, g permission.RolePermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.grants {
		if existing.RoleID == g.RoleID && existing.PermissionID == g.PermissionID && existing.GroupID == g.GroupID {
			s.grants[i] = g
			return nil
		}
	}
	s.grants = append(s.grants, g)
	return nil
}

func (s *MemoryGrantStore) RevokeGrant(ctx context.Context, roleID, permissionID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.grants[:0]
	for _, g := range s.grants {
		if g.RoleID == roleID && g.PermissionID == permissionID && g.GroupID == groupID {
			continue
		}
		kept = append(kept, g)
	}
	s.grants = kept
	return nil
}

// GetRole returns a seeded role by id.
func (s *MemoryGrantStore) GetRole(ctx context.Context, id string) (permission.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	return r, ok
}

// MemoryAuditSink records decisions in memory for tests and debugging.
type MemoryAuditSink struct {
	mu      sync.RWMutex
	entries []*permission.AuditEntry
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) RecordDecision(ctx context.Context, entry *permission.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *entry
	s.entries = append(s.entries, &dup)
	return nil
}

func (s *MemoryAuditSink) Query(ctx context.Context, filter permission.AuditFilter) ([]*permission.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*permission.AuditEntry, 0)
	for _, e := range s.entries {
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Allowed != nil && e.Allowed != *filter.Allowed {
			continue
		}
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		dup := *e
		out = append(out, &dup)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports how many entries have been recorded.
func (s *MemoryAuditSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
