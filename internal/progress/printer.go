// Package progress renders download events on a terminal.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/svaha/downloader/internal/download"
)

const prefix = "[svaha]"

// Printer writes one line per log event and per progress step.
type Printer struct {
	out     io.Writer
	verbose bool
	start   time.Time
	now     func() time.Time
	last    int
}

// NewPrinter returns a Printer writing to out, or stdout when out is nil.
// Verbose includes debug events.
func NewPrinter(out io.Writer, verbose bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, verbose: verbose, now: time.Now, last: -1}
}

// Consume prints events until the channel is closed.
func (p *Printer) Consume(events <-chan download.Event) {
	p.start = p.now()
	for e := range events {
		p.Report(e)
	}
}

// Report prints a single event. It implements download.Reporter.
func (p *Printer) Report(e download.Event) {
	if p.start.IsZero() {
		p.start = p.now()
	}
	switch e.Kind {
	case download.KindLog:
		if e.Level < slog.LevelInfo && !p.verbose {
			return
		}
		_, _ = fmt.Fprintf(p.out, "%s %s %-5s %s\n", prefix, e.Time.Format(time.TimeOnly), e.Level, e.Message)
	case download.KindProgress:
		if e.Percent == p.last {
			return
		}
		p.last = e.Percent
		_, _ = fmt.Fprintf(p.out, "%s Progress: %3d%% | Elapsed: %s\n", prefix, e.Percent, p.elapsed())
	case download.KindState:
		if p.verbose {
			_, _ = fmt.Fprintf(p.out, "%s state %s %s\n", prefix, e.State, e.Symbol)
		}
	}
}

// Summary prints the closing report for a run.
func (p *Printer) Summary(sum download.Summary, err error) {
	_, _ = fmt.Fprintf(p.out, "%s Completed: %d | Failed: %d | Pending: %d\n",
		prefix, sum.Completed, sum.Failed, sum.Pending)
	_, _ = fmt.Fprintf(p.out, "%s Wrote %s files (%s) in %s\n",
		prefix, humanize.Comma(int64(sum.Files)), humanize.Bytes(uint64(sum.Bytes)), p.elapsed())
	if sum.ManifestPath != "" {
		_, _ = fmt.Fprintf(p.out, "%s Manifest: %s\n", prefix, sum.ManifestPath)
	}
	switch {
	case sum.Canceled:
		_, _ = fmt.Fprintf(p.out, "%s Interrupted. Continue with: svaha resume --manifest %s\n", prefix, sum.ManifestPath)
	case err != nil:
		_, _ = fmt.Fprintf(p.out, "%s Failed: %v\n", prefix, err)
	case sum.Failed > 0:
		_, _ = fmt.Fprintf(p.out, "%s Retry failed symbols by moving them back to pending in the manifest.\n", prefix)
	}
}

func (p *Printer) elapsed() string {
	return p.now().Sub(p.start).Round(time.Second).String()
}
