// Package job keeps the ledger of queued download runs and the worker pool
// that executes them.
package job

import (
	"time"

	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/shard"
	"github.com/svaha/downloader/internal/store"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one submitted download. It carries the job parameters so a worker
// can rebuild the job after a restart.
type Run struct {
	ID           int64          `json:"id"`
	Symbols      []string       `json:"symbols"`
	Interval     bar.Interval   `json:"interval"`
	StartDate    time.Time      `json:"startDate"`
	EndDate      time.Time      `json:"endDate"`
	OutputDir    string         `json:"outputDir"`
	ManifestPath string         `json:"manifestPath"`
	Formats      store.Formats  `json:"formats"`
	Sharding     shard.Sharding `json:"sharding"`
	Resume       bool           `json:"resume"`
	Status       Status         `json:"status"`
	Progress     int            `json:"progress"`
	Completed    int            `json:"completed"`
	Failed       int            `json:"failed"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Active reports whether the run is queued or executing.
func (r *Run) Active() bool {
	return r.Status == StatusPending || r.Status == StatusRunning
}
