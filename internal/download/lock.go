package download

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the lock file held in the output directory while a job runs.
const LockName = ".svaha.lock"

// ErrLocked is returned when another job holds the output directory or
// manifest.
var ErrLocked = errors.New("locked by another download")

// acquireLocks takes the output directory lock and a lock next to the
// manifest, so two jobs can share neither. The returned func releases both.
func acquireLocks(outputDir, manifestPath string) (func(), error) {
	paths := []string{
		filepath.Join(outputDir, LockName),
		manifestPath + ".lock",
	}

	var held []*flock.Flock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock()
		}
	}

	for _, p := range paths {
		fl := flock.New(p)
		ok, err := fl.TryLock()
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", p, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("%s: %w", p, ErrLocked)
		}
		held = append(held, fl)
	}
	return release, nil
}
