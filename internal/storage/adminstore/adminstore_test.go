package adminstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "adminstore-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := Open(common.BadgerConfig{Path: dir}, arbor.NewLogger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestClientRepo_UpsertGetList(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepo(db, arbor.NewLogger())
	ctx := context.Background()

	c := &models.Client{MachineID: "mach-1", Hostname: "node-a", LastSeenAt: time.Now()}
	if err := repo.Upsert(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Get(ctx, "mach-1")
	if err != nil || got.Hostname != "node-a" {
		t.Fatalf("get: %+v, err %v", got, err)
	}

	c.Hostname = "node-a-renamed"
	if err := repo.Upsert(ctx, c); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}
	got, _ = repo.Get(ctx, "mach-1")
	if got.Hostname != "node-a-renamed" {
		t.Fatalf("expected overwrite to persist, got %+v", got)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: got %d, err %v", len(list), err)
	}

	if _, err := repo.Get(ctx, "missing"); err != interfaces.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommandRepo_EnqueueListPendingDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommandRepo(db, arbor.NewLogger())
	ctx := context.Background()

	cmd1 := &models.Command{ID: "cmd_1", ClientID: "mach-1", Kind: models.CommandPing}
	cmd2 := &models.Command{ID: "cmd_2", ClientID: "mach-2", Kind: models.CommandGetStatus}
	if err := repo.Enqueue(ctx, cmd1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.Enqueue(ctx, cmd2); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := repo.ListPending(ctx, "mach-1")
	if err != nil || len(pending) != 1 || pending[0].ID != "cmd_1" {
		t.Fatalf("expected only cmd_1 pending for mach-1, got %+v err %v", pending, err)
	}

	if err := repo.Delete(ctx, "cmd_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pending, _ = repo.ListPending(ctx, "mach-1")
	if len(pending) != 0 {
		t.Fatalf("expected no pending commands after dispatch, got %+v", pending)
	}

	// Deleting an already-dispatched command is a no-op, not an error.
	if err := repo.Delete(ctx, "cmd_1"); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}
}

func TestCommandResultRepo_SaveAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommandResultRepo(db, arbor.NewLogger())
	ctx := context.Background()

	r1 := &models.CommandResult{CommandID: "cmd_1", ClientID: "mach-1", Status: models.CommandResultSuccess}
	r2 := &models.CommandResult{CommandID: "cmd_2", ClientID: "mach-2", Status: models.CommandResultError, Message: "boom"}
	if err := repo.Save(ctx, r1); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, r2); err != nil {
		t.Fatalf("save: %v", err)
	}

	results, err := repo.List(ctx)
	if err != nil || len(results) != 2 {
		t.Fatalf("list: got %d, err %v", len(results), err)
	}
}
