package job

import "github.com/svaha/downloader/internal/apperror"

type GetRunRequest struct {
	ID int64
}

func (r GetRunRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid run id")
	}
	return nil
}

type ListRunsRequest struct {
	Status Status
}

func (r ListRunsRequest) Validate() *apperror.AppError {
	switch r.Status {
	case "", StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return nil
	}
	return apperror.New(apperror.BadRequest, "unknown status filter")
}
