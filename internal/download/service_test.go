package download

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/job"
	"github.com/svaha/downloader/internal/platform/sqlite"
	"github.com/svaha/downloader/internal/repository/run"
)

func newLedger(t *testing.T) *run.Repository {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return run.NewRepository(db.DB)
}

func claim(t *testing.T, repo *run.Repository, j Job) *job.Run {
	t.Helper()
	ctx := context.Background()
	r := RunFromJob(j)
	r.Status = job.StatusPending
	require.NoError(t, repo.Create(ctx, r))
	claimed, err := repo.ClaimPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

func TestRunFromJob_RoundTrip(t *testing.T) {
	j := dayJob("/data/out", "TCS")
	r := RunFromJob(j)
	assert.Equal(t, "/data/out/session_manifest.json", r.ManifestPath)

	back := JobFromRun(r)
	assert.Equal(t, j.Symbols, back.Symbols)
	assert.Equal(t, j.From, back.From)
	assert.Equal(t, r.ManifestPath, back.ManifestPath)
}

func TestProcessor_Completes(t *testing.T) {
	repo := newLedger(t)
	dir := t.TempDir()
	o := newOrchestrator(&fakeSource{}, &fakeResolver{m: tokens()})
	p := NewProcessor(o, repo)

	r := claim(t, repo, dayJob(dir, "RELIANCE", "NOPE", "TCS"))
	require.NoError(t, p.Process(context.Background(), r))

	got, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 2, got.Completed)
	assert.Equal(t, 1, got.Failed)
	assert.Empty(t, got.Error)
}

func TestProcessor_FatalMarksFailed(t *testing.T) {
	repo := newLedger(t)
	dir := t.TempDir()
	o := newOrchestrator(&fakeSource{}, &fakeResolver{err: errors.New("no instruments")})
	p := NewProcessor(o, repo)

	r := claim(t, repo, dayJob(dir, "TCS"))
	require.Error(t, p.Process(context.Background(), r))

	got, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "no instruments")
}

func TestProcessor_CanceledStaysRunning(t *testing.T) {
	repo := newLedger(t)
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{fn: func(_ context.Context, _ int64, from, to time.Time) ([]bar.Bar, error) {
		cancel()
		return dailyBars(from, to), nil
	}}
	p := NewProcessor(newOrchestrator(src, &fakeResolver{m: tokens()}), repo)

	r := claim(t, repo, dayJob(dir, "RELIANCE", "TCS"))
	require.NoError(t, p.Process(ctx, r))

	got, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, got.Status)
	assert.Equal(t, 1, got.Completed)

	n, err := repo.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The recovered run resumes from the manifest and only fetches TCS.
	src.fn = nil
	src.calls = nil
	resumed, err := repo.ClaimPending(context.Background())
	require.NoError(t, err)
	require.True(t, resumed.Resume)
	require.NoError(t, p.Process(context.Background(), resumed))

	assert.Equal(t, int64(2953217), src.calls[0].token)
	final, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.Completed)
}

func TestProcessor_RecoveredWithoutManifestStartsOver(t *testing.T) {
	repo := newLedger(t)
	dir := t.TempDir()
	src := &fakeSource{}
	p := NewProcessor(newOrchestrator(src, &fakeResolver{m: tokens()}), repo)

	j := dayJob(dir, "INFY")
	j.Resume = true
	r := claim(t, repo, j)
	require.NoError(t, p.Process(context.Background(), r))

	got, err := repo.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Completed)
}
