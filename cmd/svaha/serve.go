package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/svaha/downloader/internal/download"
	"github.com/svaha/downloader/internal/job"
	"github.com/svaha/downloader/internal/platform/sqlite"
	"github.com/svaha/downloader/internal/repository/run"
	"github.com/svaha/downloader/internal/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background download queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), g)
		},
	}
}

func serve(ctx context.Context, g *globalFlags) error {
	e, err := setup(ctx, g)
	if err != nil {
		return err
	}
	cfg := e.cfg

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	runRepo := run.NewRepository(db.DB)
	jobSvc := job.NewService(runRepo)

	// Worker pool: picks up pending runs in the background
	proc := download.NewProcessor(e.orchestrator(g, e.logger), runRepo)
	pool := job.NewWorkerPool(runRepo, proc, cfg.Workers)
	jobSvc.SetNotify(pool.Notify)

	// Re-queue runs interrupted by the last shutdown so workers resume them.
	if err := jobSvc.RecoverStaleRuns(ctx); err != nil {
		slog.Error("failed to recover stale runs", "error", err)
	}

	srv := server.New(ctx, cfg.Port, jobSvc)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		pool.Notify()
		pool.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()

		// Drain connections with a deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = eg.Wait()
	slog.Info("server stopped")
	return err
}
