package server

import (
	"net/http"

	"github.com/svaha/downloader/internal/job"
	"github.com/svaha/downloader/internal/metrics"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(jobSvc *job.Service) http.Handler {
	return newMux(jobSvc)
}

func newMux(jobSvc *job.Service) http.Handler {
	h := &handler{
		jobSvc: jobSvc,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/runs", h.createRun)
	mux.HandleFunc("GET /api/v1/runs", h.listRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.getRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/manifest", h.getManifest)
	mux.HandleFunc("GET /api/v1/files", h.listFiles)
	mux.Handle("GET /metrics", metrics.Handler())

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
