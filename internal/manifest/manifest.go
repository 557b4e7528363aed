// Package manifest persists per-symbol download progress so an interrupted
// job can be resumed. Every symbol of a job sits in exactly one of the
// pending, completed or failed lists.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/google/renameio/v2"
)

// DefaultName is the manifest file name used inside an output directory.
const DefaultName = "session_manifest.json"

// ErrInvalid reports a manifest that breaks the partition invariant.
var ErrInvalid = errors.New("invalid manifest")

// Outcome is the terminal state of a processed symbol.
type Outcome int

const (
	Completed Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Completed {
		return "completed"
	}
	return "failed"
}

// Manifest is the on-disk job state.
type Manifest struct {
	Pending   []string `json:"pending"`
	Completed []string `json:"completed"`
	Failed    []string `json:"failed"`
}

// New returns a manifest with every symbol pending.
func New(symbols []string) *Manifest {
	return &Manifest{
		Pending:   append([]string{}, symbols...),
		Completed: []string{},
		Failed:    []string{},
	}
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if m.Completed == nil {
		m.Completed = []string{}
	}
	if m.Failed == nil {
		m.Failed = []string{}
	}
	if m.Pending == nil {
		m.Pending = []string{}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the manifest to path, replacing any previous file atomically.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Validate checks that no symbol appears twice across the three lists.
func (m *Manifest) Validate() error {
	seen := make(map[string]string, m.Len())
	for _, l := range []struct {
		name    string
		symbols []string
	}{
		{"pending", m.Pending},
		{"completed", m.Completed},
		{"failed", m.Failed},
	} {
		for _, s := range l.symbols {
			if prev, ok := seen[s]; ok {
				return fmt.Errorf("%w: %s listed in %s and %s", ErrInvalid, s, prev, l.name)
			}
			seen[s] = l.name
		}
	}
	return nil
}

// Len is the total number of symbols tracked.
func (m *Manifest) Len() int {
	return len(m.Pending) + len(m.Completed) + len(m.Failed)
}

// Snapshot returns a copy of the pending list. Resolving symbols does not
// affect a snapshot taken earlier.
func (m *Manifest) Snapshot() []string {
	return slices.Clone(m.Pending)
}

// Resolve moves symbol out of pending into the list for outcome. Symbols that
// are not pending are left alone and reported as an error.
func (m *Manifest) Resolve(symbol string, outcome Outcome) error {
	i := slices.Index(m.Pending, symbol)
	if i < 0 {
		return fmt.Errorf("resolve %s: not pending", symbol)
	}
	m.Pending = slices.Delete(m.Pending, i, i+1)

	switch outcome {
	case Completed:
		m.Completed = append(m.Completed, symbol)
	default:
		m.Failed = append(m.Failed, symbol)
	}
	return nil
}
