package store

import (
	"context"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
)

// Instance is a remote instance records are read from and written to.
// Implementations must be safe for concurrent access: chunks of one transfer
// run their jobs in parallel.
type Instance interface {
	// Describe returns every type the instance exposes, with fields, references and capabilities.
	Describe(ctx context.Context) ([]schema.Description, error)

	// Count returns the number of records matching the query. Fields, OrderBy and Limit are ignored.
	// Returns datacopy.ErrTypeNotFound if the type does not exist.
	Count(ctx context.Context, q datacopy.Query) (int, error)

	// Query returns the records matching the query.
	// Returns datacopy.ErrTypeNotFound if the type does not exist.
	Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, error)

	// CreateJob opens an asynchronous write job.
	// Returns datacopy.ErrTypeNotFound if the spec names an unknown type.
	CreateJob(ctx context.Context, spec datacopy.JobSpec) (datacopy.Job, error)

	// SubmitBatch queues rows on an open job. Processing starts in the background.
	// Returns ErrJobNotFound if the job does not exist, or ErrJobNotOpen if it no longer accepts rows.
	SubmitBatch(ctx context.Context, jobID string, rows []datacopy.Record) error

	// GetJob returns the current state of a job.
	// Returns ErrJobNotFound if the job does not exist.
	GetJob(ctx context.Context, jobID string) (datacopy.Job, error)

	// GetJobResults returns one result per submitted row, in submission order.
	// Returns ErrJobNotFound if the job does not exist.
	GetJobResults(ctx context.Context, jobID string) ([]datacopy.RowResult, error)

	// CloseJob closes a job. Closing a closed job is a no-op.
	// Returns ErrJobNotFound if the job does not exist.
	CloseJob(ctx context.Context, jobID string) error

	// Apply writes rows synchronously and returns one result per row, in order.
	// It is meant for small volumes where job overhead dominates.
	Apply(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error)
}
