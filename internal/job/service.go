package job

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/svaha/downloader/internal/apperror"
)

type Service struct {
	repo   Repository
	notify func() // optional: wake worker pool

	submitMu sync.Mutex // held across the active-run check and insert
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetNotify sets a callback invoked when a new run is queued.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// RecoverStaleRuns re-queues runs left running by a previous process. They
// resume from their manifest.
func (s *Service) RecoverStaleRuns(ctx context.Context) error {
	n, err := s.repo.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("re-queued interrupted runs", "count", n)
	}
	return nil
}

// Submit queues r. Only one active run may target an output directory or a
// manifest. Both paths are stored absolute.
func (s *Service) Submit(ctx context.Context, r *Run) error {
	if err := absPaths(r); err != nil {
		return apperror.New(apperror.BadRequest, err.Error())
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	active, err := s.repo.FindActive(ctx, r.OutputDir, r.ManifestPath)
	if err != nil {
		return fmt.Errorf("find active run: %w", err)
	}
	if active != nil {
		return apperror.New(apperror.Conflict,
			fmt.Sprintf("run %d is already active for %s", active.ID, active.OutputDir))
	}

	r.Status = StatusPending
	r.Progress = 0
	if err := s.repo.Create(ctx, r); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	if s.notify != nil {
		s.notify()
	}
	return nil
}

func (s *Service) Get(ctx context.Context, req GetRunRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListRunsRequest) ([]Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, req.Status)
}

func absPaths(r *Run) error {
	dir, err := filepath.Abs(r.OutputDir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	r.OutputDir = dir

	if r.ManifestPath != "" {
		path, err := filepath.Abs(r.ManifestPath)
		if err != nil {
			return fmt.Errorf("manifest path: %w", err)
		}
		r.ManifestPath = path
	}
	return nil
}
