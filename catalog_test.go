package permission

import (
	"errors"
	"testing"
)

func testForest() []Permission {
	content := NewPermissionBuilder("p-content", "content").Inherits().Build()
	section := NewPermissionBuilder("p-section", "content:section").Parent(&content).Inherits().Build()
	publish := NewPermissionBuilder("p-publish", "content:section:publish").Parent(&section).Build()
	archived := NewPermissionBuilder("p-archived", "content:section:archive").Parent(&section).Inactive().Build()
	billing := NewPermissionBuilder("p-billing", "billing").Build()
	return []Permission{content, section, publish, archived, billing}
}

func TestCatalogAncestors(t *testing.T) {
	cat := NewCatalog(testForest())
	chain, err := cat.Ancestors("p-publish")
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 ancestors, got %d", len(chain))
	}
	if chain[0].ID != "p-content" || chain[1].ID != "p-section" {
		t.Fatalf("expected root-first order, got %s then %s", chain[0].ID, chain[1].ID)
	}
	if _, err := cat.Ancestors("p-missing"); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestCatalogDescendants(t *testing.T) {
	cat := NewCatalog(testForest())
	desc, err := cat.Descendants("p-content")
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(desc) != 3 {
		t.Fatalf("expected 3 descendants (inactive included), got %d", len(desc))
	}
	leaf, err := cat.Descendants("p-publish")
	if err != nil {
		t.Fatalf("descendants of leaf: %v", err)
	}
	if len(leaf) != 0 {
		t.Fatalf("leaf should have no descendants, got %d", len(leaf))
	}
}

func TestCatalogDescendantsByPath(t *testing.T) {
	cat := NewCatalog(testForest())
	desc := cat.DescendantsByPath("content:section")
	if len(desc) != 1 || desc[0].ID != "p-publish" {
		t.Fatalf("expected only the active publish node, got %v", desc)
	}
}

func TestExpandGrant(t *testing.T) {
	cat := NewCatalog(testForest())
	content, _ := cat.Get("p-content")

	closure, err := cat.ExpandGrant(content, true)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(closure) != 3 {
		t.Fatalf("expected node plus 2 active descendants, got %d", len(closure))
	}
	for _, p := range closure {
		if p.ID == "p-archived" {
			t.Fatalf("inactive descendant must not be granted")
		}
	}

	exact, err := cat.ExpandGrant(content, false)
	if err != nil {
		t.Fatalf("expand exact: %v", err)
	}
	if len(exact) != 1 || exact[0].ID != "p-content" {
		t.Fatalf("exact grant should cover only the node itself")
	}
}

func TestExpandGrantCycleFailsClosed(t *testing.T) {
	// corrupt parent pointers: root's parent is its own grandchild
	perms := []Permission{
		{ID: "root", Name: "root", ParentID: "b", IsActive: true, InheritsFromParent: true},
		{ID: "a", Name: "root:a", ParentID: "root", IsActive: true},
		{ID: "b", Name: "root:a:b", ParentID: "a", IsActive: true},
	}
	cat := NewCatalog(perms)

	root, _ := cat.Get("root")
	closure, err := cat.ExpandGrant(root, true)
	if !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("expected ErrHierarchyCycle, got %v", err)
	}
	if len(closure) != 1 || closure[0].ID != "root" {
		t.Fatalf("cycle must fail closed to the granted node only, got %v", closure)
	}
}

func TestNearestGrantedAncestor(t *testing.T) {
	cat := NewCatalog(testForest())

	granted := map[string]bool{"content": true, "content:section": true}
	anc, err := cat.NearestGrantedAncestor("content:section:publish", func(p *Permission) bool {
		return granted[p.Name]
	})
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if anc == nil || anc.Name != "content:section" {
		t.Fatalf("nearest granted ancestor should win, got %v", anc)
	}

	anc, err = cat.NearestGrantedAncestor("content:section:publish", func(p *Permission) bool {
		return p.Name == "content"
	})
	if err != nil || anc == nil || anc.Name != "content" {
		t.Fatalf("expected root grant, got %v (%v)", anc, err)
	}

	anc, err = cat.NearestGrantedAncestor("content:section:publish", func(*Permission) bool { return false })
	if err != nil || anc != nil {
		t.Fatalf("no grant means no ancestor, got %v (%v)", anc, err)
	}
}
