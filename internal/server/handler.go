package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/svaha/downloader/internal/download"
	"github.com/svaha/downloader/internal/job"
	"github.com/svaha/downloader/internal/manifest"
	"github.com/svaha/downloader/internal/store"
)

const maxBodyBytes = 1 << 20

type handler struct {
	jobSvc *job.Service
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createRun(w http.ResponseWriter, r *http.Request) {
	var spec download.JobSpec
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	j, err := spec.Job()
	if err != nil {
		writeAppError(w, err)
		return
	}
	if appErr := j.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	run := download.RunFromJob(j)
	if err := h.jobSvc.Submit(r.Context(), run); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	req := job.ListRunsRequest{
		Status: job.Status(r.URL.Query().Get("status")),
	}

	runs, err := h.jobSvc.List(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) getManifest(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	m, err := manifest.Load(run.ManifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "manifest not written yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *handler) listFiles(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		writeError(w, http.StatusBadRequest, "dir query parameter is required")
		return
	}
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))

	recs, err := store.OpenIndex(dir).Find(symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeCSV(w, recs)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) lookupRun(w http.ResponseWriter, r *http.Request) (*job.Run, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return nil, false
	}

	run, err := h.jobSvc.Get(r.Context(), job.GetRunRequest{ID: id})
	if err != nil {
		writeAppError(w, err)
		return nil, false
	}
	return run, true
}
