package datacopy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSchemaMismatch indicates a type or field exists on only one of the two instances.
	// Mismatches are pruned from both sides and reported as warnings, never returned from a run.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrOrderingDeadlock indicates the required-parent graph contains a cycle
	// that is not broken by a two-pass reference field.
	ErrOrderingDeadlock = errors.New("ordering deadlock")

	// ErrTransportFailure indicates a whole chunk failed at the job or network level.
	ErrTransportFailure = errors.New("transport failure")

	// ErrTypeNotFound indicates a requested object type does not exist on the instance.
	ErrTypeNotFound = errors.New("type not found")

	// ErrJobTimeout indicates a job did not complete within the poll timeout.
	ErrJobTimeout = errors.New("job timeout")

	// ErrConfiguration indicates invalid settings, or a record that cannot be keyed
	// with the configured match fields.
	ErrConfiguration = errors.New("configuration error")

	// ErrProductionGuard indicates the destination is a production instance and the
	// settings do not allow copying to it.
	ErrProductionGuard = errors.New("production guard")

	// ErrImportFailed indicates records failed to load while stop-on-errors is enabled.
	ErrImportFailed = errors.New("import failed")

	// ErrDeleteFailed indicates destination records failed to delete while stop-on-errors is enabled.
	ErrDeleteFailed = errors.New("delete failed")
)

// RunError summarizes the records that failed during a stage of a strict run.
type RunError struct {
	// Stage is the stage that failed.
	Stage Stage

	// Types maps each failing type to its bad record count.
	Types map[string]int

	// Records is the total bad record count.
	Records int
}

// NewRunError builds a RunError from the bad counts of a stage.
func NewRunError(stage Stage, results Results) *RunError {
	e := &RunError{Stage: stage, Types: make(map[string]int)}
	for _, byType := range results.Entries[stage] {
		for typ, c := range byType {
			if c.Bad > 0 {
				e.Types[typ] += c.Bad
				e.Records += c.Bad
			}
		}
	}
	return e
}

func (e *RunError) Error() string {
	names := make([]string, 0, len(e.Types))
	for typ := range e.Types {
		names = append(names, typ)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, typ := range names {
		parts[i] = fmt.Sprintf("%s: %d", typ, e.Types[typ])
	}
	return fmt.Sprintf("%s: %d bad records in %d types (%s)", e.Unwrap(), e.Records, len(names), strings.Join(parts, ", "))
}

func (e *RunError) Unwrap() error {
	if e.Stage == StageDelete {
		return ErrDeleteFailed
	}
	return ErrImportFailed
}
