package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/shard"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"download", "resume", "instruments", "serve"})
}

func TestDownloadFlags_Job(t *testing.T) {
	f := &downloadFlags{
		symbols:  []string{"infy", "tcs"},
		interval: "5minute",
		from:     "2024-01-01",
		to:       "2024-02-29",
		out:      "/data",
		parquet:  true,
		sharding: "week",
	}
	j, err := f.job()
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY", "TCS"}, j.Symbols)
	assert.Equal(t, bar.FiveMinute, j.Interval)
	assert.Equal(t, shard.Week, j.Sharding)
	assert.True(t, j.Formats.Parquet)
	assert.False(t, j.Formats.CSV)

	_, err = (&downloadFlags{}).job()
	assert.Error(t, err)
}

func TestDownloadFlags_JobFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: [SBIN]\ninterval: 15minute\nfrom: \"2024-01-01\"\nto: \"2024-01-31\"\noutput_dir: /data\nformats: {csv: true}\n"), 0o644))

	j, err := (&downloadFlags{jobFile: path, symbols: []string{"IGNORED"}}).job()
	require.NoError(t, err)
	assert.Equal(t, []string{"SBIN"}, j.Symbols)
	assert.Equal(t, bar.FifteenMinute, j.Interval)
}

func TestDownloadCmd_RejectsMissingOutputDir(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"download", "--symbols", "TCS", "--from", "2024-01-01", "--to", "2024-01-31",
		"--out", filepath.Join(t.TempDir(), "missing")})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output directory does not exist")
}

func TestResumeCmd_RequiresManifest(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"resume"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--manifest")
}
