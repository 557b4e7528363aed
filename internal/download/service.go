package download

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/svaha/downloader/internal/job"
)

// RunFromJob converts a job into a queued ledger entry.
func RunFromJob(j Job) *job.Run {
	return &job.Run{
		Symbols:      j.Symbols,
		Interval:     j.Interval,
		StartDate:    j.From,
		EndDate:      j.To,
		OutputDir:    j.OutputDir,
		ManifestPath: j.Manifest(),
		Formats:      j.Formats,
		Sharding:     j.Sharding,
		Resume:       j.Resume,
	}
}

// JobFromRun rebuilds the job a ledger entry was created from.
func JobFromRun(r *job.Run) Job {
	return Job{
		Symbols:      r.Symbols,
		Interval:     r.Interval,
		From:         r.StartDate,
		To:           r.EndDate,
		OutputDir:    r.OutputDir,
		Formats:      r.Formats,
		Sharding:     r.Sharding,
		Resume:       r.Resume,
		ManifestPath: r.ManifestPath,
	}
}

// Processor executes claimed runs with an Orchestrator and writes progress
// back to the ledger.
type Processor struct {
	orch *Orchestrator
	repo job.Repository
}

func NewProcessor(orch *Orchestrator, repo job.Repository) *Processor {
	return &Processor{orch: orch, repo: repo}
}

func (p *Processor) Process(ctx context.Context, r *job.Run) error {
	// Ledger writes must land even while the pool shuts down.
	bg := context.WithoutCancel(ctx)

	rep := ReporterFunc(func(e Event) {
		switch {
		case e.Kind == KindProgress:
			r.Progress = e.Percent
		case e.Kind == KindState && e.State == StateCompleted:
			r.Completed++
		case e.Kind == KindState && (e.State == StateFailed || e.State == StateSkipped):
			r.Failed++
		default:
			return
		}
		if err := p.repo.Update(bg, r); err != nil {
			slog.Error("update run progress", "run", r.ID, "error", err)
		}
	})

	j := JobFromRun(r)
	if j.Resume && len(j.Symbols) > 0 {
		// A run recovered before its first manifest write starts over.
		if _, err := os.Stat(j.Manifest()); errors.Is(err, fs.ErrNotExist) {
			j.Resume = false
		}
	}

	sum, err := p.orch.Run(ctx, j, rep)

	if errors.Is(err, context.Canceled) {
		// Left running so the next start re-queues it in resume mode.
		if uerr := p.repo.Update(bg, r); uerr != nil {
			slog.Error("update run", "run", r.ID, "error", uerr)
		}
		return nil
	}

	if err != nil {
		r.Status = job.StatusFailed
		r.Error = err.Error()
	} else {
		r.Status = job.StatusCompleted
		r.Progress = 100
		r.Completed = sum.Completed
		r.Failed = sum.Failed
	}
	if uerr := p.repo.Update(bg, r); uerr != nil {
		slog.Error("update run", "run", r.ID, "error", uerr)
	}
	return err
}
