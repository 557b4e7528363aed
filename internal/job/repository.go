package job

import "context"

type Repository interface {
	Create(ctx context.Context, r *Run) error
	Update(ctx context.Context, r *Run) error
	Get(ctx context.Context, id int64) (*Run, error)
	List(ctx context.Context, status Status) ([]Run, error)
	FindActive(ctx context.Context, outputDir, manifestPath string) (*Run, error)
	ClaimPending(ctx context.Context) (*Run, error)
	RecoverStale(ctx context.Context) (int64, error)
}
