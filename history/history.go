// Package history keeps a record of past runs in a bbolt database.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/getpup/datacopy"
)

const runsBucket = "runs"

var (
	// ErrRunNotFound indicates no run is stored under the requested id.
	ErrRunNotFound = errors.New("run not found")

	// ErrLocked indicates the database is held open by another process.
	ErrLocked = errors.New("history database is in use")
)

// Run is one CLI invocation and its outcome.
type Run struct {
	ID          string           `json:"id"`
	Command     string           `json:"command"`
	Source      string           `json:"source"`
	Destination string           `json:"destination"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
	Bad         int              `json:"bad"`
	Error       string           `json:"error,omitempty"`
	Results     datacopy.Results `json:"results"`
}

// Succeeded reports whether the run ended without an error.
func (r Run) Succeeded() bool {
	return r.Error == ""
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create folder for %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a run, replacing any run with the same id. A run without an id gets one.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.ID, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put([]byte(run.ID), data)
	})
}

// Get returns the run stored under id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero or less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("failed to decode run %s: %w", k, err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
