package run

import (
	"context"
	"testing"
	"time"

	"github.com/svaha/downloader/internal/bar"
	domain "github.com/svaha/downloader/internal/job"
	"github.com/svaha/downloader/internal/platform/sqlite"
	"github.com/svaha/downloader/internal/shard"
	"github.com/svaha/downloader/internal/store"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRun(dir string, status domain.Status) *domain.Run {
	return &domain.Run{
		Symbols:   []string{"RELIANCE", "TCS"},
		Interval:  bar.Day,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		OutputDir: dir,
		Formats:   store.Formats{CSV: true, Parquet: true},
		Sharding:  shard.Month,
		Status:    status,
	}
}

func TestCreate_And_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	r := newRun("/data/out", domain.StatusPending)
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == 0 {
		t.Fatal("expected non-zero ID")
	}

	got, err := repo.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Symbols) != 2 || got.Symbols[0] != "RELIANCE" || got.Symbols[1] != "TCS" {
		t.Errorf("unexpected symbols %v", got.Symbols)
	}
	if got.Interval != bar.Day {
		t.Errorf("expected day, got %s", got.Interval)
	}
	if got.Sharding != shard.Month {
		t.Errorf("expected month sharding, got %s", got.Sharding)
	}
	if !got.Formats.CSV || !got.Formats.Parquet {
		t.Errorf("expected both formats, got %+v", got.Formats)
	}
	if !got.StartDate.Equal(r.StartDate) || !got.EndDate.Equal(r.EndDate) {
		t.Errorf("dates: got %s..%s", got.StartDate, got.EndDate)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
}

func TestUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	r := newRun("/data/out", domain.StatusPending)
	if err := repo.Create(ctx, r); err != nil {
		t.Fatal(err)
	}

	r.Status = domain.StatusCompleted
	r.Progress = 100
	r.Completed = 1
	r.Failed = 1
	if err := repo.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := repo.Get(ctx, r.ID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if got.Progress != 100 || got.Completed != 1 || got.Failed != 1 {
		t.Errorf("unexpected counters %+v", got)
	}
	if got.Error != "" {
		t.Errorf("expected empty error, got %q", got.Error)
	}
}

func TestList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	for _, st := range []domain.Status{domain.StatusPending, domain.StatusPending, domain.StatusFailed} {
		if err := repo.Create(ctx, newRun("/data/out", st)); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := repo.List(ctx, domain.StatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2, got %d", len(runs))
	}

	runs, err = repo.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3, got %d", len(runs))
	}
	if runs[0].ID != 3 {
		t.Errorf("expected newest first, got id %d", runs[0].ID)
	}

	runs, err = repo.List(ctx, domain.StatusRunning)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", runs)
	}
}

func TestClaimPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	if err := repo.Create(ctx, newRun("/a", domain.StatusPending)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, newRun("/b", domain.StatusPending)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got == nil || got.ID != 1 || got.Status != domain.StatusRunning {
		t.Fatalf("expected run 1 running, got %+v", got)
	}

	got, _ = repo.ClaimPending(ctx)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected run 2, got %+v", got)
	}

	got, err = repo.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil when queue is empty, got %+v", got)
	}
}

func TestRecoverStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	for _, st := range []domain.Status{domain.StatusRunning, domain.StatusPending, domain.StatusCompleted} {
		if err := repo.Create(ctx, newRun("/data/out", st)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recovered (running→pending), got %d", n)
	}

	r, err := repo.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != domain.StatusPending {
		t.Errorf("expected status pending, got %s", r.Status)
	}
	if !r.Resume {
		t.Error("expected recovered run to resume from its manifest")
	}

	n2, err := repo.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("recover again: %v", err)
	}
	if n2 != 0 {
		t.Errorf("expected 0, got %d", n2)
	}
}

func TestFindActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	if err := repo.Create(ctx, newRun("/data/out", domain.StatusRunning)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, newRun("/data/done", domain.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindActive(ctx, "/data/out", "")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got == nil {
		t.Fatal("expected active run")
	}

	got, err = repo.FindActive(ctx, "/data/done", "")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got != nil {
		t.Error("expected nil for a directory with only finished runs")
	}
}

func TestFindActive_SharedManifest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	r := newRun("/data/a", domain.StatusPending)
	r.ManifestPath = "/data/a/session_manifest.json"
	if err := repo.Create(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindActive(ctx, "/data/b", "/data/a/session_manifest.json")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got == nil || got.ID != r.ID {
		t.Fatalf("expected run %d through its manifest, got %+v", r.ID, got)
	}

	got, err = repo.FindActive(ctx, "/data/b", "/data/b/session_manifest.json")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got != nil {
		t.Errorf("unrelated directory and manifest matched run %d", got.ID)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	_, err := repo.Get(context.Background(), 999)
	if err == nil {
		t.Fatal("expected error for missing run")
	}
}
