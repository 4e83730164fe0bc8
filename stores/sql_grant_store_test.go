package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/linguahub/permission"
)

func openTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLGrantStoreRoundtrip(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLGrantStore(db)
	ctx := context.Background()

	parent := permission.NewPermissionBuilder("p-content", "content").Inherits().Build()
	child := permission.NewPermissionBuilder("p-edit", "content:edit").Parent(&parent).Build()
	for _, p := range []permission.Permission{parent, child} {
		if err := store.SavePermission(ctx, p); err != nil {
			t.Fatalf("save permission %s: %v", p.ID, err)
		}
	}

	perms, err := store.LoadPermissionTree(ctx)
	if err != nil {
		t.Fatalf("load tree: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected 2 permissions, got %d", len(perms))
	}
	cat := permission.NewCatalog(perms)
	got, ok := cat.Get("p-edit")
	if !ok {
		t.Fatalf("p-edit not loaded")
	}
	if got.ParentID != "p-content" || got.Level != 1 || got.Path != "content:edit" {
		t.Fatalf("unexpected node after roundtrip: %+v", got)
	}
	if root, _ := cat.Get("p-content"); !root.InheritsFromParent {
		t.Fatalf("inheritance flag lost in roundtrip")
	}
}

func TestSQLGrantStoreRolePermissions(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLGrantStore(db)
	ctx := context.Background()

	perm := permission.NewPermissionBuilder("p-edit", "content:edit").Build()
	if err := store.SavePermission(ctx, perm); err != nil {
		t.Fatalf("save permission: %v", err)
	}
	if err := store.SaveRole(ctx, permission.NewRoleBuilder("editor", "Editor").Group("group-1").Build()); err != nil {
		t.Fatalf("save role: %v", err)
	}

	until := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	grant := permission.NewGrantBuilder("editor", "p-edit").
		Group("group-1").
		Conditions(`{"field":"ownerId","operator":"equals","value":"$subject.id"}`).
		ValidUntil(until).
		Build()
	if err := store.SaveGrant(ctx, grant); err != nil {
		t.Fatalf("save grant: %v", err)
	}

	rows, err := store.LoadRolePermissions(ctx, []string{"editor", "viewer"})
	if err != nil {
		t.Fatalf("load role permissions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.RoleID != "editor" || got.PermissionID != "p-edit" || got.GroupID != "group-1" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Conditions == "" {
		t.Fatalf("conditions blob lost")
	}
	if !got.ValidFrom.IsZero() {
		t.Fatalf("unset ValidFrom should stay zero, got %v", got.ValidFrom)
	}
	if got.ValidUntil.IsZero() || !got.ValidUntil.Equal(until) {
		t.Fatalf("expected ValidUntil %v, got %v", until, got.ValidUntil)
	}

	// unknown roles load nothing
	rows, err = store.LoadRolePermissions(ctx, []string{"viewer"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows for unknown role, got %d", len(rows))
	}
	if rows, _ := store.LoadRolePermissions(ctx, nil); len(rows) != 0 {
		t.Fatalf("empty role list loads nothing")
	}
}

func TestSQLGrantStoreRevoke(t *testing.T) {
	db := openTestDB(t)
	store := NewSQLGrantStore(db)
	ctx := context.Background()

	if err := store.SavePermission(ctx, permission.NewPermissionBuilder("p-edit", "content:edit").Build()); err != nil {
		t.Fatalf("save permission: %v", err)
	}
	grant := permission.NewGrantBuilder("editor", "p-edit").Group("group-1").Build()
	if err := store.SaveGrant(ctx, grant); err != nil {
		t.Fatalf("save grant: %v", err)
	}
	// saving the same key again updates instead of duplicating
	grant.Conditions = `{"field":"status","operator":"equals","value":"draft"}`
	if err := store.SaveGrant(ctx, grant); err != nil {
		t.Fatalf("upsert grant: %v", err)
	}
	rows, _ := store.LoadRolePermissions(ctx, []string{"editor"})
	if len(rows) != 1 || rows[0].Conditions == "" {
		t.Fatalf("upsert should replace the row, got %+v", rows)
	}

	if err := store.RevokeGrant(ctx, "editor", "p-edit", "group-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	rows, _ = store.LoadRolePermissions(ctx, []string{"editor"})
	if len(rows) != 0 {
		t.Fatalf("revoked grant still present: %+v", rows)
	}
}

func TestSQLAuditSink(t *testing.T) {
	db := openTestDB(t)
	sink := NewSQLAuditSink(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	entries := []*permission.AuditEntry{
		{SubjectID: "user-1", GroupID: "group-1", Requirement: "permission:content:edit", Allowed: true, Reason: "explicit grant", Handler: "explicit-permission", Timestamp: base},
		{SubjectID: "user-1", Requirement: "permission:users:read", Allowed: false, Reason: "default deny", Timestamp: base.Add(time.Minute)},
		{SubjectID: "user-2", Requirement: "super-admin", Allowed: true, Reason: "super admin bypass", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := sink.RecordDecision(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := sink.Query(ctx, permission.AuditFilter{SubjectID: "user-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for user-1, got %d", len(got))
	}
	if got[0].Requirement != "permission:users:read" {
		t.Fatalf("expected newest-first ordering, got %+v", got[0])
	}

	denied := false
	got, err = sink.Query(ctx, permission.AuditFilter{Allowed: &denied})
	if err != nil {
		t.Fatalf("query denied: %v", err)
	}
	if len(got) != 1 || got[0].Reason != "default deny" {
		t.Fatalf("unexpected denied entries: %+v", got)
	}

	got, err = sink.Query(ctx, permission.AuditFilter{StartTime: base.Add(time.Minute), Limit: 1})
	if err != nil {
		t.Fatalf("query windowed: %v", err)
	}
	if len(got) != 1 || got[0].SubjectID != "user-2" {
		t.Fatalf("unexpected windowed result: %+v", got)
	}

	n, err := sink.PurgeBefore(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
}
