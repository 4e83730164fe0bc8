package permission

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/linguahub/permission/logger"
)

// GrantStore is the narrow read interface onto the persistence layer. The
// engine never writes through it; admin write paths live with the host and
// are only required to invalidate the cache before acknowledging success.
type GrantStore interface {
	LoadPermissionTree(ctx context.Context) ([]Permission, error)
	LoadRolePermissions(ctx context.Context, roleIDs []string) ([]RolePermission, error)
}

// conditionalGrant is a grant whose applicability depends on a predicate.
// A nil predicate marks a grant whose Conditions blob failed to parse: it is
// permanently unsatisfiable.
type conditionalGrant struct {
	names     []string // expanded closure of the granted node
	pattern   string   // wildcard pattern, if the granted node is a wildcard
	predicate *Predicate
}

// EffectivePermissionSet is the fully expanded, wildcard-resolved,
// validity-filtered set of permissions a subject holds in one group context.
// It is immutable after Resolve returns; the cache publishes it atomically.
type EffectivePermissionSet struct {
	names        map[string]struct{}
	patterns     []string
	conditionals []conditionalGrant
	builtAt      time.Time
}

// Has reports whether the name is granted unconditionally, either exactly or
// through a wildcard pattern.
func (s *EffectivePermissionSet) Has(name string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.names[name]; ok {
		return true
	}
	return MatchesAny(name, s.patterns)
}

// HasConditional reports whether at least one conditional grant covers the
// name and its predicate holds for the subject's resource context.
func (s *EffectivePermissionSet) HasConditional(name string, subject *SubjectContext) bool {
	if s == nil {
		return false
	}
	for i := range s.conditionals {
		cg := &s.conditionals[i]
		if !cg.covers(name) {
			continue
		}
		if cg.predicate.Evaluate(subject) {
			return true
		}
	}
	return false
}

func (cg *conditionalGrant) covers(name string) bool {
	if cg.pattern != "" && Matches(name, cg.pattern) {
		return true
	}
	for _, n := range cg.names {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns the unconditional names in sorted order, for diagnostics.
func (s *EffectivePermissionSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BuiltAt returns when the set was materialized.
func (s *EffectivePermissionSet) BuiltAt() time.Time { return s.builtAt }

// ============================================================================
// GRANT RESOLVER
// ============================================================================

// GrantResolver turns the subject's roles into an EffectivePermissionSet:
// group-scope and validity filtering, hierarchy closure, wildcard patterns
// and conditional grants.
type GrantResolver struct {
	store   GrantStore
	log     logger.Logger
	clock   func() time.Time
	catalog atomic.Pointer[Catalog]
}

// NewGrantResolver wires a resolver over the grant store.
func NewGrantResolver(store GrantStore, log logger.Logger, clock func() time.Time) *GrantResolver {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if clock == nil {
		clock = time.Now
	}
	return &GrantResolver{store: store, log: log, clock: clock}
}

// Catalog returns the indexed permission forest, loading it on first use.
// ReloadCatalog swaps in a fresh snapshot after administrative changes.
func (r *GrantResolver) Catalog(ctx context.Context) (*Catalog, error) {
	if c := r.catalog.Load(); c != nil {
		return c, nil
	}
	return r.ReloadCatalog(ctx)
}

// ReloadCatalog rebuilds the catalog snapshot from the store.
func (r *GrantResolver) ReloadCatalog(ctx context.Context) (*Catalog, error) {
	perms, err := r.store.LoadPermissionTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load permission tree: %v", ErrStoreUnavailable, err)
	}
	c := NewCatalog(perms)
	r.catalog.Store(c)
	return c, nil
}

// Resolve materializes the effective permission set for the subject's active
// group context. Store errors fail the resolution; the engine converts that
// into a Deny with a transient reason code.
func (r *GrantResolver) Resolve(ctx context.Context, subject *SubjectContext) (*EffectivePermissionSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	cat, err := r.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.LoadRolePermissions(ctx, subject.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: load role permissions: %v", ErrStoreUnavailable, err)
	}

	now := r.clock()
	set := &EffectivePermissionSet{
		names:   make(map[string]struct{}),
		builtAt: now,
	}
	for i := range rows {
		row := &rows[i]
		if row.GroupID != "" && row.GroupID != subject.ActiveGroupID {
			continue
		}
		if !row.ValidAt(now) {
			continue
		}
		perm, ok := cat.Get(row.PermissionID)
		if !ok {
			r.log.Error("grant references unknown permission",
				"role", row.RoleID, "permission_id", row.PermissionID)
			continue
		}
		if !perm.IsActive {
			continue
		}

		closure, err := cat.ExpandGrant(perm, perm.InheritsFromParent)
		if err != nil {
			// fail closed: the node stays granted, its subtree does not
			r.log.Error("hierarchy integrity violation",
				"permission", perm.Name, "err", err.Error())
		}

		if row.Conditions != "" {
			r.addConditional(set, row, perm, closure)
			continue
		}
		for _, p := range closure {
			set.names[p.Name] = struct{}{}
		}
		if perm.IsWildcard && perm.WildcardPattern != "" {
			set.patterns = append(set.patterns, perm.WildcardPattern)
		}
	}
	return set, nil
}

func (r *GrantResolver) addConditional(set *EffectivePermissionSet, row *RolePermission, perm *Permission, closure []*Permission) {
	cg := conditionalGrant{names: make([]string, 0, len(closure))}
	for _, p := range closure {
		cg.names = append(cg.names, p.Name)
	}
	if perm.IsWildcard && perm.WildcardPattern != "" {
		cg.pattern = perm.WildcardPattern
	}
	pred, err := ParsePredicate(row.Conditions)
	if err != nil {
		// unsatisfiable, never "condition absent"
		r.log.Error("unparseable grant conditions, grant disabled",
			"role", row.RoleID, "permission", perm.Name, "err", err.Error())
	}
	cg.predicate = pred
	set.conditionals = append(set.conditionals, cg)
}
