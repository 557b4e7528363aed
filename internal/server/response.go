package server

import (
	"encoding/csv"
	"encoding/json"
	"net/http"

	"github.com/svaha/downloader/internal/apperror"
	"github.com/svaha/downloader/internal/store"
)

type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message: message,
		Data:    "",
	})
}

// writeAppError maps coded errors to their status and everything else to 500.
func writeAppError(w http.ResponseWriter, err error) {
	if ae, ok := apperror.As(err); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeCSV(w http.ResponseWriter, recs []store.Record) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=metadata.csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"file_id", "base_filename", "symbol", "start_date", "end_date",
		"interval", "sharding", "shard_name", "csv_filename", "parquet_filename"})
	for _, r := range recs {
		_ = cw.Write([]string{
			r.FileID,
			r.BaseFilename,
			r.Symbol,
			r.StartDate,
			r.EndDate,
			r.Interval,
			r.Sharding,
			r.ShardName,
			r.CSVFilename,
			r.ParquetFilename,
		})
	}
	cw.Flush()
}
