package stores

import (
	"context"
	"testing"
	"time"

	"github.com/linguahub/permission"
)

func TestMemoryGrantStore(t *testing.T) {
	store := NewMemoryGrantStore()
	ctx := context.Background()

	if err := store.SavePermission(ctx, permission.NewPermissionBuilder("p-edit", "content:edit").Build()); err != nil {
		t.Fatalf("save permission: %v", err)
	}
	if err := store.SaveRole(ctx, permission.NewRoleBuilder("editor", "Editor").Build()); err != nil {
		t.Fatalf("save role: %v", err)
	}
	if err := store.SaveGrant(ctx, permission.NewGrantBuilder("editor", "p-edit").Group("group-1").Build()); err != nil {
		t.Fatalf("save grant: %v", err)
	}

	perms, err := store.LoadPermissionTree(ctx)
	if err != nil || len(perms) != 1 {
		t.Fatalf("load tree: %v %v", perms, err)
	}
	rows, err := store.LoadRolePermissions(ctx, []string{"editor"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("load grants: %v %v", rows, err)
	}
	if rows, _ := store.LoadRolePermissions(ctx, []string{"viewer"}); len(rows) != 0 {
		t.Fatalf("unknown role should load nothing")
	}

	// saving the same grant key replaces rather than duplicates
	if err := store.SaveGrant(ctx, permission.NewGrantBuilder("editor", "p-edit").Group("group-1").
		Conditions(`{"field":"status","operator":"equals","value":"draft"}`).Build()); err != nil {
		t.Fatalf("upsert grant: %v", err)
	}
	rows, _ = store.LoadRolePermissions(ctx, []string{"editor"})
	if len(rows) != 1 || rows[0].Conditions == "" {
		t.Fatalf("upsert should replace, got %+v", rows)
	}

	if err := store.RevokeGrant(ctx, "editor", "p-edit", "group-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if rows, _ := store.LoadRolePermissions(ctx, []string{"editor"}); len(rows) != 0 {
		t.Fatalf("revoked grant still present")
	}

	if _, ok := store.GetRole(ctx, "editor"); !ok {
		t.Fatalf("seeded role should be retrievable")
	}
}

func TestMemoryAuditSink(t *testing.T) {
	sink := NewMemoryAuditSink()
	ctx := context.Background()
	base := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	entries := []*permission.AuditEntry{
		{SubjectID: "user-1", Allowed: true, Reason: "explicit grant", Timestamp: base},
		{SubjectID: "user-1", Allowed: false, Reason: "default deny", Timestamp: base.Add(time.Minute)},
		{SubjectID: "user-2", Allowed: true, Reason: "super admin bypass", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := sink.RecordDecision(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if sink.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", sink.Len())
	}

	got, err := sink.Query(ctx, permission.AuditFilter{SubjectID: "user-1"})
	if err != nil || len(got) != 2 {
		t.Fatalf("subject filter: %v %v", got, err)
	}
	denied := false
	got, err = sink.Query(ctx, permission.AuditFilter{Allowed: &denied})
	if err != nil || len(got) != 1 || got[0].Reason != "default deny" {
		t.Fatalf("allowed filter: %v %v", got, err)
	}
	got, err = sink.Query(ctx, permission.AuditFilter{StartTime: base.Add(time.Minute), EndTime: base.Add(time.Minute), Limit: 5})
	if err != nil || len(got) != 1 || got[0].SubjectID != "user-1" {
		t.Fatalf("time window filter: %v %v", got, err)
	}
	got, err = sink.Query(ctx, permission.AuditFilter{Limit: 2})
	if err != nil || len(got) != 2 {
		t.Fatalf("limit: %v %v", got, err)
	}
}
