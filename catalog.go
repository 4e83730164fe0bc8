package permission

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is an immutable, id-indexed view of the permission forest. It is
// built once per LoadPermissionTree result; parent/children adjacency is
// precomputed so lookups never traverse a live object graph.
type Catalog struct {
	byID     map[string]*Permission
	byName   map[string]*Permission
	children map[string][]string
	roots    []string
}

// NewCatalog indexes the permission forest. Input order does not matter;
// siblings are ordered by Priority (descending) then Name for deterministic
// traversal.
func NewCatalog(perms []Permission) *Catalog {
	c := &Catalog{
		byID:     make(map[string]*Permission, len(perms)),
		byName:   make(map[string]*Permission, len(perms)),
		children: make(map[string][]string),
	}
	for i := range perms {
		p := perms[i]
		c.byID[p.ID] = &p
		c.byName[p.Name] = &p
	}
	for _, p := range c.byID {
		if p.ParentID == "" {
			c.roots = append(c.roots, p.ID)
			continue
		}
		c.children[p.ParentID] = append(c.children[p.ParentID], p.ID)
	}
	byPriority := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool {
			a, b := c.byID[ids[i]], c.byID[ids[j]]
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			return a.Name < b.Name
		})
	}
	byPriority(c.roots)
	for id := range c.children {
		byPriority(c.children[id])
	}
	return c
}

// Len returns the number of nodes in the catalog.
func (c *Catalog) Len() int { return len(c.byID) }

// Get returns a permission by id.
func (c *Catalog) Get(id string) (*Permission, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// GetByName returns a permission by its full name.
func (c *Catalog) GetByName(name string) (*Permission, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// Ancestors returns the parent chain of id ordered root first. A cycle in the
// parent chain aborts the walk with ErrHierarchyCycle; writes are expected to
// enforce acyclicity but reads do not trust that.
func (c *Catalog) Ancestors(id string) ([]*Permission, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, id)
	}
	visited := map[string]bool{p.ID: true}
	chain := make([]*Permission, 0, p.Level)
	for p.ParentID != "" {
		parent, ok := c.byID[p.ParentID]
		if !ok {
			break
		}
		if visited[parent.ID] {
			return nil, fmt.Errorf("%w: via %s", ErrHierarchyCycle, parent.ID)
		}
		visited[parent.ID] = true
		chain = append(chain, parent)
		p = parent
	}
	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Descendants returns every node below id, in priority order. A cycle anywhere
// in the subtree aborts the walk with ErrHierarchyCycle.
func (c *Catalog) Descendants(id string) ([]*Permission, error) {
	if _, ok := c.byID[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, id)
	}
	visited := map[string]bool{id: true}
	out := make([]*Permission, 0)
	stack := append([]string(nil), c.children[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			return nil, fmt.Errorf("%w: via %s", ErrHierarchyCycle, cur)
		}
		visited[cur] = true
		p := c.byID[cur]
		out = append(out, p)
		stack = append(stack, c.children[cur]...)
	}
	return out, nil
}

// DescendantsByPath returns active nodes whose materialized Path sits under
// the given path prefix. This mirrors the descendant-prefix query the grant
// store runs; Descendants is the adjacency-based equivalent.
func (c *Catalog) DescendantsByPath(path string) []*Permission {
	prefix := path + TokenDelimiter
	out := make([]*Permission, 0)
	for _, p := range c.byID {
		if p.IsActive && strings.HasPrefix(p.Path, prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ExpandGrant resolves the closure a single grant implies. With
// inheritsFromParent the grant on p also covers every active descendant of p;
// without it the grant is exact-match only. A hierarchy cycle fails closed:
// the node itself stays granted, descendants do not, and the error is
// returned so the caller can log the integrity violation.
func (c *Catalog) ExpandGrant(p *Permission, inheritsFromParent bool) ([]*Permission, error) {
	if p == nil || !p.IsActive {
		return nil, nil
	}
	out := []*Permission{p}
	if !inheritsFromParent {
		return out, nil
	}
	descendants, err := c.Descendants(p.ID)
	if err != nil {
		return out, err
	}
	for _, d := range descendants {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

// NearestGrantedAncestor walks the ancestor chain of the named permission
// from the closest ancestor outward and returns the first one satisfying
// granted. The nearer ancestor deciding first is what makes the inheritance
// tie-break deterministic when ancestors disagree on the flag.
func (c *Catalog) NearestGrantedAncestor(name string, granted func(*Permission) bool) (*Permission, error) {
	p, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, name)
	}
	chain, err := c.Ancestors(p.ID)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if granted(chain[i]) {
			return chain[i], nil
		}
	}
	return nil, nil
}
