// Package download runs resumable historical-data downloads. A job walks its
// symbols one at a time, pages each through the provider in bounded windows,
// writes the result to the output directory and rewrites the manifest after
// every symbol so an interrupted job can pick up where it stopped.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/svaha/downloader/internal/fetch"
	"github.com/svaha/downloader/internal/instrument"
	"github.com/svaha/downloader/internal/logging"
	"github.com/svaha/downloader/internal/manifest"
	"github.com/svaha/downloader/internal/metrics"
	"github.com/svaha/downloader/internal/store"
)

const (
	DefaultExchange    = "NSE"
	DefaultSymbolDelay = 500 * time.Millisecond
)

// MapResolver builds the symbol to token lookup for an exchange.
type MapResolver interface {
	Resolve(ctx context.Context, exchange string) (instrument.Map, error)
}

// Summary describes the manifest after a run.
type Summary struct {
	Total        int
	Completed    int
	Failed       int
	Pending      int
	Files        int
	Bytes        int64
	ManifestPath string
	Canceled     bool
}

type Orchestrator struct {
	resolver    MapResolver
	source      fetch.Source
	exchange    string
	windowDays  int
	symbolDelay time.Duration
	logger      *slog.Logger
	logDir      string
	writerOpts  []store.Option
	now         func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithExchange(exchange string) Option {
	return func(o *Orchestrator) { o.exchange = exchange }
}

// WithWindowDays sets the widest date window requested from the provider.
func WithWindowDays(n int) Option {
	return func(o *Orchestrator) { o.windowDays = n }
}

// WithSymbolDelay sets the pause after every symbol.
func WithSymbolDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.symbolDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSessionLogs writes a log file per run into dir.
func WithSessionLogs(dir string) Option {
	return func(o *Orchestrator) { o.logDir = dir }
}

func WithWriterOptions(opts ...store.Option) Option {
	return func(o *Orchestrator) { o.writerOpts = append(o.writerOpts, opts...) }
}

func New(resolver MapResolver, source fetch.Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:    resolver,
		source:      source,
		exchange:    DefaultExchange,
		windowDays:  fetch.DefaultWindowDays,
		symbolDelay: DefaultSymbolDelay,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Session is a job running on its own goroutine.
type Session struct {
	events chan Event
	done   chan struct{}
	sum    Summary
	err    error
}

// Events delivers the job's events. It is closed when the job exits, whatever
// the outcome. Callers must drain it.
func (s *Session) Events() <-chan Event { return s.events }

// Wait blocks until the job exits and returns its summary and fatal error.
func (s *Session) Wait() (Summary, error) {
	<-s.done
	return s.sum, s.err
}

// Start runs job in the background.
func (o *Orchestrator) Start(ctx context.Context, job Job) *Session {
	s := &Session{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		s.sum, s.err = o.Run(ctx, job, chanReporter(s.events))
	}()
	return s
}

// Run executes job on the calling goroutine. Only fatal conditions are
// returned: an invalid job, a held lock, a failed instrument map or a missing
// resume manifest. Per-symbol failures land in the manifest. A canceled ctx
// stops the job between symbols and returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, job Job, rep Reporter) (Summary, error) {
	if rep == nil {
		rep = nopReporter{}
	}
	r := &runner{
		o:      o,
		job:    job,
		rep:    rep,
		logger: o.logger,
	}
	defer r.state(StateFinished, "")

	r.state(StateInitializing, "")
	return r.run(ctx)
}

type runner struct {
	o      *Orchestrator
	job    Job
	rep    Reporter
	logger *slog.Logger

	tokens instrument.Map
	pager  *fetch.Paginator
	writer *store.Writer
	sum    Summary
}

func (r *runner) run(ctx context.Context) (Summary, error) {
	if verr := r.job.Validate(); verr != nil {
		return r.sum, r.abort(ctx, fmt.Errorf("invalid job: %w", verr))
	}

	if r.o.logDir != "" {
		sess, err := logging.NewSession(r.o.logDir, r.o.logger.Handler(), r.o.now())
		if err != nil {
			r.logf(ctx, slog.LevelWarn, "", "Session log unavailable: %v", err)
		} else {
			defer func() { _ = sess.Close() }()
			r.logger = sess.Logger
		}
	}
	r.logf(ctx, slog.LevelInfo, "", "Worker started.")

	path := r.job.Manifest()
	r.sum.ManifestPath = path
	release, err := acquireLocks(r.job.OutputDir, path)
	if err != nil {
		return r.sum, r.abort(ctx, err)
	}
	defer release()

	r.tokens, err = r.o.resolver.Resolve(ctx, r.o.exchange)
	if err != nil {
		return r.sum, r.abort(ctx, fmt.Errorf("build instrument map: %w", err))
	}
	r.state(StateInstrumentMapReady, "")
	r.logf(ctx, slog.LevelInfo, "", "Instrument map ready: %d %s symbols.", len(r.tokens), r.o.exchange)

	m, err := r.manifest(ctx, path)
	if err != nil {
		return r.sum, r.abort(ctx, err)
	}

	r.pager = fetch.NewPaginator(r.o.source,
		fetch.WithWindowDays(r.o.windowDays),
		fetch.WithWindowHook(func(w fetch.DateRange, rows int) {
			r.logger.Debug("window fetched",
				"from", w.From.Format(dateFormat), "to", w.To.Format(dateFormat), "rows", rows)
		}),
	)
	r.writer = store.NewWriter(r.job.OutputDir, r.job.Formats, r.o.writerOpts...)

	err = r.process(ctx, m, path)
	r.sum.Total = m.Len()
	r.sum.Completed = len(m.Completed)
	r.sum.Failed = len(m.Failed)
	r.sum.Pending = len(m.Pending)
	r.state(StateDone, "")
	r.logf(ctx, slog.LevelInfo, "", "Worker finished. completed=%d failed=%d pending=%d",
		r.sum.Completed, r.sum.Failed, r.sum.Pending)
	return r.sum, err
}

func (r *runner) manifest(ctx context.Context, path string) (*manifest.Manifest, error) {
	if !r.job.Resume {
		return manifest.New(r.job.Symbols), nil
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	r.logf(ctx, slog.LevelInfo, "", "Resuming from %s: %d pending, %d completed, %d failed.",
		path, len(m.Pending), len(m.Completed), len(m.Failed))
	return m, nil
}

func (r *runner) process(ctx context.Context, m *manifest.Manifest, path string) error {
	symbols := m.Snapshot()
	total := len(symbols)
	if total == 0 {
		r.logf(ctx, slog.LevelInfo, "", "No pending symbols in manifest. Nothing to do.")
		r.progress(100)
		return nil
	}

	r.state(StateProcessingSymbols, "")
	for i, sym := range symbols {
		if err := ctx.Err(); err != nil {
			r.sum.Canceled = true
			r.logf(ctx, slog.LevelWarn, "", "Canceled with %d symbols pending.", total-i)
			return err
		}
		r.progress(i * 100 / total)

		outcome := r.symbol(ctx, sym, i, total)
		if err := m.Resolve(sym, outcome); err != nil {
			r.logf(ctx, slog.LevelError, sym, "ERROR updating manifest: %v", err)
		}
		metrics.SymbolsProcessed.WithLabelValues(outcome.String()).Inc()

		if err := m.Save(path); err != nil {
			r.logf(ctx, slog.LevelError, sym, "ERROR writing manifest %s: %v", path, err)
		} else {
			r.state(StateManifestPersisted, sym)
		}

		if !r.sleep(ctx) && i < total-1 {
			r.sum.Canceled = true
			r.logf(ctx, slog.LevelWarn, "", "Canceled with %d symbols pending.", total-i-1)
			return ctx.Err()
		}
	}
	r.progress(100)
	return nil
}

// symbol fetches and saves one symbol. It never fails the job: every error,
// including a panic, becomes a failed outcome.
func (r *runner) symbol(ctx context.Context, sym string, i, total int) (outcome manifest.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.logf(ctx, slog.LevelError, sym, "ERROR processing %s: panic: %v", sym, p)
			r.state(StateFailed, sym)
			outcome = manifest.Failed
		}
	}()

	token, ok := r.tokens.Token(sym)
	if !ok {
		r.logf(ctx, slog.LevelWarn, sym, "SKIP: No token found for %s", sym)
		r.state(StateSkipped, sym)
		return manifest.Failed
	}

	r.state(StateFetchingSymbol, sym)
	r.logf(ctx, slog.LevelInfo, sym, "FETCH: %s (%d/%d)", sym, i+1, total)

	// A symbol already under way runs to completion.
	work := context.WithoutCancel(ctx)
	bars, err := r.pager.Fetch(work, fetch.Request{
		Token:    token,
		From:     r.job.From,
		To:       r.job.To,
		Interval: r.job.Interval,
	})
	if err != nil {
		r.logf(ctx, slog.LevelError, sym, "ERROR fetching %s: %v", sym, err)
		r.state(StateFailed, sym)
		return manifest.Failed
	}
	if len(bars) == 0 {
		r.logf(ctx, slog.LevelWarn, sym, "WARN: No data returned for %s", sym)
		r.state(StateFailed, sym)
		return manifest.Failed
	}

	res, err := r.writer.Save(work, store.Batch{
		Symbol:   sym,
		Interval: r.job.Interval,
		From:     r.job.From,
		To:       r.job.To,
		Sharding: r.job.Sharding,
		Bars:     bars,
	})
	if err != nil {
		r.logf(ctx, slog.LevelError, sym, "ERROR saving %s: %v", sym, err)
		r.state(StateFailed, sym)
		return manifest.Failed
	}
	r.sum.Files += res.Files
	r.sum.Bytes += res.Bytes

	r.logf(ctx, slog.LevelInfo, sym, "SAVE: %s data saved (%d rows, %d files, %s).",
		sym, len(bars), res.Files, humanize.Bytes(uint64(res.Bytes)))
	r.state(StateCompleted, sym)
	return manifest.Completed
}

// sleep waits the inter-symbol delay. It returns false if ctx ended first.
func (r *runner) sleep(ctx context.Context) bool {
	if r.o.symbolDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.o.symbolDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *runner) abort(ctx context.Context, err error) error {
	r.logf(ctx, slog.LevelError, "", "FATAL ERROR: %v", err)
	r.state(StateAborted, "")
	return err
}

func (r *runner) logf(ctx context.Context, level slog.Level, sym, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if sym != "" {
		r.logger.Log(ctx, level, msg, "symbol", sym)
	} else {
		r.logger.Log(ctx, level, msg)
	}
	r.rep.Report(Event{Kind: KindLog, Time: r.o.now(), Level: level, Message: msg, Symbol: sym})
}

func (r *runner) progress(pct int) {
	r.rep.Report(Event{Kind: KindProgress, Time: r.o.now(), Percent: pct})
}

func (r *runner) state(s State, sym string) {
	r.rep.Report(Event{Kind: KindState, Time: r.o.now(), State: s, Symbol: sym})
}

// IsFatal reports whether err stopped a job before or instead of processing
// symbols. Cancellation is not fatal.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
