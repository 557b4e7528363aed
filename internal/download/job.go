package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/svaha/downloader/internal/apperror"
	"github.com/svaha/downloader/internal/bar"
	"github.com/svaha/downloader/internal/manifest"
	"github.com/svaha/downloader/internal/shard"
	"github.com/svaha/downloader/internal/store"
)

const dateFormat = "2006-01-02"

// Job is a validated set of download parameters.
type Job struct {
	Symbols   []string
	Interval  bar.Interval
	From      time.Time
	To        time.Time
	OutputDir string
	Formats   store.Formats
	Sharding  shard.Sharding
	// Resume takes symbols from the manifest at ManifestPath instead of
	// Symbols.
	Resume       bool
	ManifestPath string
}

// Manifest returns the manifest path, defaulting to a file in OutputDir.
func (j Job) Manifest() string {
	if j.ManifestPath != "" {
		return j.ManifestPath
	}
	return filepath.Join(j.OutputDir, manifest.DefaultName)
}

// Validate rejects a job before any provider call or file write. The output
// directory is checked but never created.
func (j Job) Validate() *apperror.AppError {
	if _, err := bar.ParseInterval(string(j.Interval)); err != nil {
		return apperror.New(apperror.BadRequest, err.Error())
	}
	if j.From.IsZero() || j.To.IsZero() {
		return apperror.New(apperror.BadRequest, "from and to dates are required")
	}
	if j.From.After(j.To) {
		return apperror.New(apperror.BadRequest, "from date must not be after to date")
	}
	if !j.Formats.Any() {
		return apperror.New(apperror.BadRequest, "select at least one output format")
	}
	if !j.Sharding.Valid() {
		return apperror.New(apperror.BadRequest, fmt.Sprintf("unknown sharding %d", int(j.Sharding)))
	}
	if j.OutputDir == "" {
		return apperror.New(apperror.BadRequest, "output directory is required")
	}
	fi, err := os.Stat(j.OutputDir)
	if err != nil || !fi.IsDir() {
		return apperror.New(apperror.BadRequest, "output directory does not exist: "+j.OutputDir)
	}

	if j.Resume {
		return nil
	}
	if len(j.Symbols) == 0 {
		return apperror.New(apperror.BadRequest, "at least one symbol is required")
	}
	seen := make(map[string]bool, len(j.Symbols))
	for _, s := range j.Symbols {
		if strings.TrimSpace(s) == "" {
			return apperror.New(apperror.BadRequest, "empty symbol")
		}
		if seen[s] {
			return apperror.New(apperror.BadRequest, "duplicate symbol "+s)
		}
		seen[s] = true
	}
	return nil
}

// JobSpec is the wire and file form of a Job. Dates are 2006-01-02.
type JobSpec struct {
	Symbols      []string      `json:"symbols" yaml:"symbols"`
	Interval     string        `json:"interval" yaml:"interval"`
	From         string        `json:"from" yaml:"from"`
	To           string        `json:"to" yaml:"to"`
	OutputDir    string        `json:"outputDir" yaml:"output_dir"`
	Formats      store.Formats `json:"formats" yaml:"formats"`
	Sharding     string        `json:"sharding" yaml:"sharding"`
	Resume       bool          `json:"resume" yaml:"resume"`
	ManifestPath string        `json:"manifestPath" yaml:"manifest_path"`
}

// Job parses the spec. It does not validate the result.
func (s JobSpec) Job() (Job, error) {
	j := Job{
		Interval:     bar.Interval(strings.TrimSpace(s.Interval)),
		OutputDir:    s.OutputDir,
		Formats:      s.Formats,
		Resume:       s.Resume,
		ManifestPath: s.ManifestPath,
	}
	for _, sym := range s.Symbols {
		j.Symbols = append(j.Symbols, strings.ToUpper(strings.TrimSpace(sym)))
	}

	var err error
	if j.From, err = time.Parse(dateFormat, s.From); err != nil {
		return Job{}, apperror.New(apperror.BadRequest, "invalid from date, expected YYYY-MM-DD")
	}
	if j.To, err = time.Parse(dateFormat, s.To); err != nil {
		return Job{}, apperror.New(apperror.BadRequest, "invalid to date, expected YYYY-MM-DD")
	}
	if j.Sharding, err = shard.Parse(s.Sharding); err != nil {
		return Job{}, apperror.New(apperror.BadRequest, err.Error())
	}
	return j, nil
}

// LoadJobFile reads a YAML job definition.
func LoadJobFile(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job file: %w", err)
	}
	var spec JobSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return Job{}, fmt.Errorf("parse job file %s: %w", path, err)
	}
	return spec.Job()
}
