package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	l, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewSession_FansOut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	started := time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC)
	s, err := NewSession(dir, NewConsoleHandler(&console, slog.LevelInfo), started)
	require.NoError(t, err)

	s.Info("FETCH", "symbol", "TCS")
	s.Debug("window", "rows", 10)
	require.NoError(t, s.Close())

	assert.Equal(t, filepath.Join(dir, "download_session_2023-01-02_15-04-05.log"), s.Path())

	file, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(file), `"msg":"FETCH"`)
	assert.Contains(t, string(file), `"symbol":"TCS"`)
	assert.Contains(t, string(file), `"msg":"window"`, "file keeps debug records")

	assert.Contains(t, console.String(), "FETCH")
	assert.NotContains(t, console.String(), "window", "console filters below info")
}

func TestNewSession_FileOnly(t *testing.T) {
	s, err := NewSession(t.TempDir(), nil, time.Now())
	require.NoError(t, err)
	s.Warn("SKIP", "symbol", "XYZ")
	require.NoError(t, s.Close())

	file, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(file), `"level":"WARN"`)
}

func TestIsTerminal_NonTTY(t *testing.T) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer func() { _ = devNull.Close() }()
	assert.False(t, isTerminal(devNull))

	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, isTerminal(f))

	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestNewConsoleHandler_PlainToFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)

	slog.New(NewConsoleHandler(f, slog.LevelInfo)).Info("saved", "symbol", "TCS")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "symbol=TCS")
	assert.NotContains(t, string(data), "\x1b[")
}
