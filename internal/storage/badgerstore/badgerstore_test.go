package badgerstore

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
	dir, err := os.MkdirTemp("", "badgerstore-test")
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

func TestProfileRepo_CreateGetListDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewProfileRepo(db, arbor.NewLogger())
	ctx := context.Background()

	p := &models.Profile{ID: "profile_1", Email: "a@b.com"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set on create")
	}

	got, err := repo.Get(ctx, "profile_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "a@b.com" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	list, err := repo.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: got %d items, err %v", len(list), err)
	}

	if err := repo.Delete(ctx, "profile_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "profile_1"); err != interfaces.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestProfileRepo_Update(t *testing.T) {
	db := newTestDB(t)
	repo := NewProfileRepo(db, arbor.NewLogger())
	ctx := context.Background()

	p := &models.Profile{ID: "profile_2"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	firstUpdated := p.UpdatedAt

	p.FirstName = "Jo"
	time.Sleep(time.Millisecond)
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := repo.Get(ctx, "profile_2")
	if got.FirstName != "Jo" {
		t.Fatalf("update did not persist: %+v", got)
	}
	if !got.UpdatedAt.After(firstUpdated) {
		t.Fatal("expected UpdatedAt to advance on update")
	}
}

func TestSiteRepo_ListEnabledAndUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewSiteRepo(db, arbor.NewLogger())
	ctx := context.Background()

	sites := []*models.Site{
		{ID: "site_1", URL: "https://a.example.com", Enabled: true},
		{ID: "site_2", URL: "https://b.example.com", Enabled: false},
	}
	for _, s := range sites {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	enabled, err := repo.ListEnabled(ctx)
	if err != nil || len(enabled) != 1 || enabled[0].ID != "site_1" {
		t.Fatalf("expected only site_1 enabled, got %+v err %v", enabled, err)
	}

	now := time.Now()
	if err := repo.UpdateStatus(ctx, "site_1", models.SiteStatusSuccess, 7, now); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := repo.Get(ctx, "site_1")
	if got.LastStatus != models.SiteStatusSuccess || got.LastFieldsFilled != 7 {
		t.Fatalf("status update did not persist: %+v", got)
	}

	if err := repo.UpdateStatus(ctx, "no-such-site", models.SiteStatusSuccess, 0, now); err != interfaces.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSiteRepo_UpdateCachedPlan(t *testing.T) {
	db := newTestDB(t)
	repo := NewSiteRepo(db, arbor.NewLogger())
	ctx := context.Background()

	if err := repo.Create(ctx, &models.Site{ID: "site_3", URL: "https://c.example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	plan := []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.9}}
	if err := repo.UpdateCachedPlan(ctx, "site_3", plan); err != nil {
		t.Fatalf("update cached plan: %v", err)
	}
	got, _ := repo.Get(ctx, "site_3")
	if len(got.CachedPlan) != 1 || got.CachedPlan[0].Selector != "#email" {
		t.Fatalf("cached plan did not persist: %+v", got.CachedPlan)
	}
}

func TestDomainMappingRepo_PutBumpsVersionAndKeepsFirstURL(t *testing.T) {
	db := newTestDB(t)
	repo := NewDomainMappingRepo(db, arbor.NewLogger())
	ctx := context.Background()

	plan1 := []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.8}}
	v1, err := repo.Put(ctx, "example.com", plan1, "https://example.com/signup")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected version 1 on first write, got %d", v1)
	}

	plan2 := []models.FieldPlanEntry{{Selector: "#email", ProfileKey: "email", Confidence: 0.95}}
	v2, err := repo.Put(ctx, "example.com", plan2, "https://example.com/signup/step2")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if v2 != 2 {
		t.Fatalf("expected version 2 on second write, got %d", v2)
	}

	got, err := repo.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FirstURL != "https://example.com/signup" {
		t.Fatalf("expected FirstURL to be preserved from the first write, got %q", got.FirstURL)
	}
	if got.Version != 2 {
		t.Fatalf("expected stored version 2, got %d", got.Version)
	}
}

func TestDomainMappingRepo_GetMissingReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewDomainMappingRepo(db, arbor.NewLogger())

	if _, err := repo.Get(context.Background(), "nowhere.example.com"); err != interfaces.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryRepo_AppendIsIdempotentOnJobID(t *testing.T) {
	db := newTestDB(t)
	repo := NewHistoryRepo(db, arbor.NewLogger())
	ctx := context.Background()

	entry := models.FillHistoryEntry{JobID: "job_1", SiteID: "site_1", FieldsFilled: 3}
	if err := repo.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	var stored models.FillHistoryEntry
	if err := db.Store().Get("job_1", &stored); err != nil {
		t.Fatalf("get stored entry: %v", err)
	}
	if stored.FieldsFilled != 3 {
		t.Fatalf("unexpected stored entry: %+v", stored)
	}
	firstCreatedAt := stored.CreatedAt

	// Re-appending the same job id with different data must be a no-op.
	dup := models.FillHistoryEntry{JobID: "job_1", SiteID: "site_1", FieldsFilled: 99}
	if err := repo.Append(ctx, dup); err != nil {
		t.Fatalf("duplicate append: %v", err)
	}

	var after models.FillHistoryEntry
	if err := db.Store().Get("job_1", &after); err != nil {
		t.Fatalf("get after duplicate append: %v", err)
	}
	if after.FieldsFilled != 3 {
		t.Fatalf("duplicate append must not overwrite existing entry, got fields_filled=%d", after.FieldsFilled)
	}
	if !after.CreatedAt.Equal(firstCreatedAt) {
		t.Fatal("duplicate append must not change the original CreatedAt")
	}
}
