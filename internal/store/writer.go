// Package store writes fetched bars to the output directory as CSV and/or
// Parquet files and records every file group in the metadata index.
package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/metrics"
	"github.com/svaha/downloader/internal/shard"
)

const (
	dateFormat = "2006-01-02"

	// Sharded rows are bucketed on wall-clock time, so they are written
	// without an offset. Unsharded rows keep it.
	naiveTimeFormat = "2006-01-02 15:04:05"
	zonedTimeFormat = "2006-01-02 15:04:05-07:00"
)

// Formats selects which file types are written.
type Formats struct {
	CSV     bool `json:"csv" yaml:"csv"`
	Parquet bool `json:"parquet" yaml:"parquet"`
}

// Any reports whether at least one format is selected.
func (f Formats) Any() bool { return f.CSV || f.Parquet }

// Batch is one symbol's fetched rows plus the job parameters that describe
// them in the index.
type Batch struct {
	Symbol   string
	Interval bar.Interval
	From     time.Time
	To       time.Time
	Sharding shard.Sharding
	Bars     []bar.Bar
}

// Result lists what Save wrote.
type Result struct {
	Records []Record
	Files   int
	Bytes   int64
}

// Writer saves batches into a single output directory.
type Writer struct {
	dir     string
	formats Formats
	index   *Index
	newID   func() string
}

// Option configures a Writer.
type Option func(*Writer)

// WithIDFunc overrides file id generation.
func WithIDFunc(fn func() string) Option {
	return func(w *Writer) { w.newID = fn }
}

// NewWriter creates a Writer for dir. The directory must already exist.
func NewWriter(dir string, formats Formats, opts ...Option) *Writer {
	w := &Writer{
		dir:     dir,
		formats: formats,
		index:   OpenIndex(dir),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Index returns the metadata index the writer appends to.
func (w *Writer) Index() *Index { return w.index }

// Save writes one file group per shard of b and appends their records to the
// index in a single rewrite. On error no file written by this call is left
// behind.
func (w *Writer) Save(ctx context.Context, b Batch) (res Result, err error) {
	if !w.formats.Any() {
		return Result{}, fmt.Errorf("save %s: no output format selected", b.Symbol)
	}
	// An unreadable index would leave the data files unrecorded.
	if _, err := w.index.Load(); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", b.Symbol, err)
	}

	var written []string
	defer func() {
		if err == nil {
			return
		}
		for _, p := range written {
			_ = os.Remove(p)
		}
		res = Result{}
	}()

	timeFormat := zonedTimeFormat
	if b.Sharding != shard.None {
		timeFormat = naiveTimeFormat
	}

	for _, g := range b.Sharding.Partition(b.Bars) {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec := Record{
			FileID:    w.newID(),
			Symbol:    b.Symbol,
			StartDate: b.From.Format(dateFormat),
			EndDate:   b.To.Format(dateFormat),
			Interval:  string(b.Interval),
			Sharding:  b.Sharding.String(),
			ShardName: g.Label,
		}
		if b.Sharding == shard.None {
			rec.BaseFilename = fmt.Sprintf("%s_%s_%s_%s", b.Symbol, rec.StartDate, rec.EndDate, b.Interval)
		} else {
			rec.BaseFilename = fmt.Sprintf("%s_%s_%s", b.Symbol, b.Interval, g.Label)
		}

		var csvSize, pqSize int64
		var eg errgroup.Group
		if w.formats.CSV {
			rec.CSVFilename = rec.FileID + ".csv"
			path := filepath.Join(w.dir, rec.CSVFilename)
			written = append(written, path)
			eg.Go(func() (err error) {
				csvSize, err = writeCSV(path, g.Bars, timeFormat)
				return err
			})
		}
		if w.formats.Parquet {
			rec.ParquetFilename = rec.FileID + ".parquet"
			path := filepath.Join(w.dir, rec.ParquetFilename)
			written = append(written, path)
			eg.Go(func() (err error) {
				pqSize, err = writeParquet(path, b.Symbol, g.Bars, timeFormat)
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return res, fmt.Errorf("save %s %s: %w", b.Symbol, rec.BaseFilename, err)
		}

		if rec.CSVFilename != "" {
			res.Files++
		}
		if rec.ParquetFilename != "" {
			res.Files++
		}
		res.Bytes += csvSize + pqSize
		res.Records = append(res.Records, rec)
	}

	if err := w.index.Append(res.Records...); err != nil {
		return res, err
	}

	for _, rec := range res.Records {
		if rec.CSVFilename != "" {
			metrics.FilesWritten.WithLabelValues("csv").Inc()
		}
		if rec.ParquetFilename != "" {
			metrics.FilesWritten.WithLabelValues("parquet").Inc()
		}
	}
	metrics.BytesWritten.Add(float64(res.Bytes))
	return res, nil
}

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

func writeCSV(path string, bars []bar.Bar, timeFormat string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Date.Format(timeFormat),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close csv: %w", err)
	}
	return fileSize(path), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type parquetRow struct {
	Symbol    string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Date      string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Volume    int64   `parquet:"name=volume, type=INT64"`
}

func writeParquet(path, symbol string, bars []bar.Bar, timeFormat string) (int64, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("create parquet: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		_ = fw.Close()
		return 0, fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, b := range bars {
		row := parquetRow{
			Symbol:    symbol,
			Timestamp: b.Date.UnixMilli(),
			Date:      b.Date.Format(timeFormat),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
		if err := pw.Write(row); err != nil {
			_ = fw.Close()
			return 0, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return 0, fmt.Errorf("finish parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("close parquet: %w", err)
	}
	return fileSize(path), nil
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
