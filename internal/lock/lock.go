// Package lock keeps two runs from writing to the same destination at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
)

// ErrLocked indicates another run holds the lock.
var ErrLocked = errors.New("another run against this destination is in progress")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Lock is a held destination lock.
type Lock struct {
	fl *flock.Flock
}

// Path returns the lock file of a destination alias under dir.
func Path(dir, alias string) string {
	return filepath.Join(dir, "."+unsafeChars.ReplaceAllString(alias, "_")+".lock")
}

// Acquire takes the lock of alias without blocking.
// Returns an error wrapping ErrLocked if another run holds it.
func Acquire(dir, alias string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock folder: %w", err)
	}

	path := Path(dir, alias)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, alias)
	}
	return &Lock{fl: fl}, nil
}

// Release releases the lock. The lock file is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
