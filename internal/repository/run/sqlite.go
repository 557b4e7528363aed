// Package run stores download runs in sqlite.
package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/svaha/downloader/internal/apperror"
	"github.com/svaha/downloader/internal/bar"
	domain "github.com/svaha/downloader/internal/job"
	"github.com/svaha/downloader/internal/shard"
)

const dateFormat = "2006-01-02"

const columns = `id, symbols, interval, start_date, end_date, output_dir,
	manifest_path, save_csv, save_parquet, sharding, resume, status,
	progress, completed, failed, error, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, run *domain.Run) error {
	const query = `INSERT INTO runs (symbols, interval, start_date, end_date,
		output_dir, manifest_path, save_csv, save_parquet, sharding, resume, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	symbols, err := json.Marshal(nonNil(run.Symbols))
	if err != nil {
		return fmt.Errorf("create run: encode symbols: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query,
		string(symbols), string(run.Interval),
		run.StartDate.Format(dateFormat), run.EndDate.Format(dateFormat),
		run.OutputDir, run.ManifestPath,
		run.Formats.CSV, run.Formats.Parquet,
		run.Sharding.String(), run.Resume, string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	run.ID, _ = res.LastInsertId()
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	return nil
}

// Update writes the mutable fields: status, progress, counts, error and the
// resume flag.
func (r *Repository) Update(ctx context.Context, run *domain.Run) error {
	const query = `UPDATE runs SET status = ?, progress = ?, completed = ?,
		failed = ?, error = ?, resume = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		string(run.Status), run.Progress, run.Completed, run.Failed,
		runErr, run.Resume, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *Repository) List(ctx context.Context, status domain.Status) ([]domain.Run, error) {
	query := `SELECT ` + columns + ` FROM runs WHERE 1=1`

	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id DESC LIMIT 100"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// FindActive returns a pending or running run that writes to outputDir or
// to manifestPath, or nil.
func (r *Repository) FindActive(ctx context.Context, outputDir, manifestPath string) (*domain.Run, error) {
	const query = `SELECT ` + columns + ` FROM runs
		WHERE status IN ('pending', 'running')
		  AND (output_dir = ? OR (? != '' AND manifest_path = ?))
		ORDER BY id ASC
		LIMIT 1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, outputDir, manifestPath, manifestPath))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active run: %w", err)
	}
	return run, nil
}

func (r *Repository) ClaimPending(ctx context.Context) (*domain.Run, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim pending: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM runs WHERE status = 'pending' ORDER BY id ASC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: select: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET status = 'running', updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim pending: commit: %w", err)
	}

	return r.Get(ctx, id)
}

// RecoverStale re-queues runs interrupted by a restart. They continue from
// their manifest, so resume is switched on.
func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	const query = `UPDATE runs SET status = 'pending', resume = 1, error = NULL,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE status = 'running'`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recover stale runs: %w", err)
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var symbols, interval, startStr, endStr, sharding, status string
	var createdStr, updatedStr string
	var dbErr sql.NullString

	if err := s.Scan(
		&run.ID, &symbols, &interval, &startStr, &endStr, &run.OutputDir,
		&run.ManifestPath, &run.Formats.CSV, &run.Formats.Parquet, &sharding,
		&run.Resume, &status, &run.Progress, &run.Completed, &run.Failed,
		&dbErr, &createdStr, &updatedStr,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(symbols), &run.Symbols); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}
	sh, err := shard.Parse(sharding)
	if err != nil {
		return nil, err
	}
	run.Sharding = sh
	run.Interval = bar.Interval(interval)
	run.Status = domain.Status(status)
	if dbErr.Valid {
		run.Error = dbErr.String
	}
	run.StartDate, _ = time.Parse(dateFormat, startStr)
	run.EndDate, _ = time.Parse(dateFormat, endStr)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
