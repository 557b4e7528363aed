package instrument

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Lister fetches the full instrument listing for an exchange.
type Lister interface {
	Instruments(ctx context.Context, exchange string) ([]Instrument, error)
}

// Resolver builds instrument maps, preferring the on-disk cache.
type Resolver struct {
	lister         Lister
	cacheDir       string
	instrumentType string
	logger         *slog.Logger
}

// NewResolver creates a Resolver that caches listings under cacheDir and
// keeps only instrumentType rows.
func NewResolver(lister Lister, cacheDir, instrumentType string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lister:         lister,
		cacheDir:       cacheDir,
		instrumentType: instrumentType,
		logger:         logger,
	}
}

// CachePath is where the listing for exchange is cached.
func (r *Resolver) CachePath(exchange string) string {
	return filepath.Join(r.cacheDir, "instruments_"+strings.ToUpper(exchange)+".csv")
}

// Resolve returns the symbol map for exchange, loading the cache when present
// and fetching (then caching) otherwise.
func (r *Resolver) Resolve(ctx context.Context, exchange string) (Map, error) {
	instruments, err := r.loadCache(exchange)
	switch {
	case err == nil:
		r.logger.Info("loaded instruments from cache", "exchange", exchange, "count", len(instruments))
	case errors.Is(err, os.ErrNotExist):
		instruments, err = r.fetch(ctx, exchange)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return r.build(instruments, exchange)
}

// Refresh ignores the cache, fetches a fresh listing and rewrites the cache.
func (r *Resolver) Refresh(ctx context.Context, exchange string) (Map, error) {
	instruments, err := r.fetch(ctx, exchange)
	if err != nil {
		return nil, err
	}
	return r.build(instruments, exchange)
}

// build fails when the listing has no instrument of the configured type.
func (r *Resolver) build(instruments []Instrument, exchange string) (Map, error) {
	m := BuildMap(instruments, r.instrumentType)
	if len(m) == 0 {
		return nil, fmt.Errorf("no %s instruments for %s", r.instrumentType, exchange)
	}
	return m, nil
}

func (r *Resolver) loadCache(exchange string) ([]Instrument, error) {
	f, err := os.Open(r.CachePath(exchange))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	instruments, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("instrument cache %s: %w", f.Name(), err)
	}
	return instruments, nil
}

func (r *Resolver) fetch(ctx context.Context, exchange string) ([]Instrument, error) {
	instruments, err := r.lister.Instruments(ctx, exchange)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, instruments); err != nil {
		return nil, fmt.Errorf("encode instrument cache: %w", err)
	}
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if err := renameio.WriteFile(r.CachePath(exchange), buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write instrument cache: %w", err)
	}

	r.logger.Info("fetched and cached instruments", "exchange", exchange, "count", len(instruments))
	return instruments, nil
}
