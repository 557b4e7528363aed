// Package fetch pages a historical-data source through bounded date windows.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/svaha/downloader/internal/bar"
)

// DefaultWindowDays is the widest span the provider serves for intraday
// intervals in one call.
const DefaultWindowDays = 60

const dateFormat = "2006-01-02"

// Source serves historical bars for one instrument token and window.
type Source interface {
	HistoricalData(ctx context.Context, token int64, from, to time.Time, interval bar.Interval) ([]bar.Bar, error)
}

// Request is a full-range fetch for one instrument.
type Request struct {
	Token    int64
	From     time.Time
	To       time.Time
	Interval bar.Interval
}

// Paginator splits a request into windows and fetches them in order.
type Paginator struct {
	src        Source
	windowDays int
	onWindow   func(w DateRange, rows int)
}

// Option configures a Paginator.
type Option func(*Paginator)

// WithWindowDays sets the maximum window span in days.
func WithWindowDays(n int) Option {
	return func(p *Paginator) { p.windowDays = n }
}

// WithWindowHook is called after each window is fetched.
func WithWindowHook(fn func(w DateRange, rows int)) Option {
	return func(p *Paginator) { p.onWindow = fn }
}

// NewPaginator creates a Paginator over src.
func NewPaginator(src Source, opts ...Option) *Paginator {
	p := &Paginator{src: src, windowDays: DefaultWindowDays}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Fetch returns every bar in [req.From, req.To] in chronological window
// order. The first failing window aborts the fetch; no window is skipped.
func (p *Paginator) Fetch(ctx context.Context, req Request) ([]bar.Bar, error) {
	from, to := truncateDay(req.From), truncateDay(req.To)
	windows := SplitDateRange(from, to, p.windowDays)
	if len(windows) == 0 {
		return nil, fmt.Errorf("invalid range %s..%s (window %d days)",
			from.Format(dateFormat), to.Format(dateFormat), p.windowDays)
	}

	var all []bar.Bar
	for _, w := range windows {
		rows, err := p.src.HistoricalData(ctx, req.Token, w.From, w.To, req.Interval)
		if err != nil {
			return nil, fmt.Errorf("window %s..%s: %w", w.From.Format(dateFormat), w.To.Format(dateFormat), err)
		}
		if p.onWindow != nil {
			p.onWindow(w, len(rows))
		}
		all = append(all, rows...)
	}
	return all, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
