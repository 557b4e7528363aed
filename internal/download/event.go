package download

import (
	"log/slog"
	"time"
)

type EventKind int

const (
	KindLog EventKind = iota
	KindProgress
	KindState
)

// State is a step of the per-job state machine.
type State string

const (
	StateInitializing       State = "initializing"
	StateInstrumentMapReady State = "instrument_map_ready"
	StateAborted            State = "aborted"
	StateProcessingSymbols  State = "processing_symbols"
	StateFetchingSymbol     State = "fetching_symbol"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
	StateSkipped            State = "skipped"
	StateManifestPersisted  State = "manifest_persisted"
	StateDone               State = "done"
	StateFinished           State = "finished"
)

// Event flows one way from a running job to its subscriber.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Level   slog.Level
	Message string
	Symbol  string
	Percent int
	State   State
}

// Reporter receives events in order. Report is called from the job
// goroutine and should not block for long.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

type chanReporter chan<- Event

func (c chanReporter) Report(e Event) { c <- e }

type nopReporter struct{}

func (nopReporter) Report(Event) {}
