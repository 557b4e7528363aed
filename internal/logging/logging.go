// Package logging configures slog for the CLI and for download sessions.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/term"
)

// ParseLevel accepts debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

// NewConsoleHandler returns a colourised handler writing to w.
func NewConsoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Setup installs a console logger as the slog default and returns it.
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	l := slog.New(NewConsoleHandler(w, level))
	slog.SetDefault(l)
	return l
}

// Session is a logger that writes to the parent handler and to a log file
// dedicated to one download session.
type Session struct {
	*slog.Logger
	path string
	file *os.File
}

// NewSession opens logs/download_session_<timestamp>.log under dir and fans
// records out to it and to parent. A nil parent logs to the file only.
func NewSession(dir string, parent slog.Handler, started time.Time) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, "download_session_"+started.Format("2006-01-02_15-04-05")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	var h slog.Handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	if parent != nil {
		h = slogmulti.Fanout(parent, h)
	}
	return &Session{Logger: slog.New(h), path: path, file: f}, nil
}

// Path is the session log file.
func (s *Session) Path() string { return s.path }

func (s *Session) Close() error { return s.file.Close() }
