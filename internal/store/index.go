package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// IndexName is the metadata index file name inside an output directory.
const IndexName = "metadata.json"

// Record describes one written file group: a symbol's rows (or one shard of
// them) saved under a generated id in one or more formats.
type Record struct {
	FileID          string `json:"file_id"`
	BaseFilename    string `json:"base_filename"`
	Symbol          string `json:"symbol"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Interval        string `json:"interval"`
	Sharding        string `json:"sharding"`
	ShardName       string `json:"shard_name,omitempty"`
	CSVFilename     string `json:"csv_filename,omitempty"`
	ParquetFilename string `json:"parquet_filename,omitempty"`
}

// Index is the JSON array of records kept beside the output files. Every
// write reloads and rewrites the whole array so the file is always valid.
type Index struct {
	path string
}

// OpenIndex returns the index for an output directory. The file is created
// on first Append.
func OpenIndex(dir string) *Index {
	return &Index{path: filepath.Join(dir, IndexName)}
}

func (ix *Index) Path() string { return ix.path }

// Load returns all records. A missing file is an empty index.
func (ix *Index) Load() ([]Record, error) {
	data, err := os.ReadFile(ix.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", ix.path, err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// Append adds records to the end of the index.
func (ix *Index) Append(recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}

	existing, err := ix.Load()
	if err != nil {
		return err
	}
	existing = append(existing, recs...)

	data, err := json.MarshalIndent(existing, "", "    ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := renameio.WriteFile(ix.path, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Find returns the records for symbol, or all records when symbol is empty.
func (ix *Index) Find(symbol string) ([]Record, error) {
	recs, err := ix.Load()
	if err != nil {
		return nil, err
	}
	if symbol == "" {
		return recs, nil
	}

	out := make([]Record, 0)
	for _, r := range recs {
		if r.Symbol == symbol {
			out = append(out, r)
		}
	}
	return out, nil
}
