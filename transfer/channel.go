// Package transfer moves row sets to and from an instance. Writes are split into
// chunks, each chunk runs as one asynchronous job, and jobs are awaited by polling.
// Small volumes can use the synchronous direct path instead.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/metrics"
	"github.com/getpup/datacopy/store"
)

// Mode selects how writes reach the instance.
type Mode string

const (
	// ModeBulk submits chunks as asynchronous jobs.
	ModeBulk Mode = "bulk"

	// ModeDirect writes chunks synchronously, one after the other.
	ModeDirect Mode = "direct"
)

// Config holds configuration for a Channel.
type Config struct {
	// Instance is the instance rows are written to and read from (required).
	Instance store.Instance

	// Mode selects bulk or direct writes (default: ModeBulk).
	Mode Mode

	// ChunkSize is the maximum number of rows per bulk job (default: 10000).
	ChunkSize int

	// DirectChunkSize is the maximum number of rows per direct write (default: 200).
	DirectChunkSize int

	// DirectThreshold sends row sets of at most this many rows through the direct path
	// even in bulk mode. Zero disables it.
	DirectThreshold int

	// MaxConcurrentChunks bounds the jobs in flight for one transfer (default: 4).
	MaxConcurrentChunks int

	// PollInterval is how often job state is checked (default: 1s).
	PollInterval time.Duration

	// PollTimeout is the max time to wait for one job (default: 100s).
	PollTimeout time.Duration

	// Collector receives transfer metrics (optional).
	Collector *metrics.Collector

	// Logger is for observability (optional).
	Logger datacopy.Logger
}

// Channel is a Transferrer backed by a store.Instance.
type Channel struct {
	config Config
}

// Compile-time check that Channel implements Transferrer.
var _ Transferrer = (*Channel)(nil)

// New creates a Channel. Applies default values for sizes and durations if zero.
func New(cfg Config) *Channel {
	if cfg.Mode == "" {
		cfg.Mode = ModeBulk
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 10000
	}
	if cfg.DirectChunkSize <= 0 {
		cfg.DirectChunkSize = 200
	}
	if cfg.MaxConcurrentChunks <= 0 {
		cfg.MaxConcurrentChunks = 4
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 100 * time.Second
	}
	return &Channel{config: cfg}
}

// Request is a set of rows to write to one type.
type Request struct {
	// Type is the object type written to.
	Type string

	// Operation is the write applied to every row.
	Operation datacopy.Operation

	// Rows are the records to write. They are never modified.
	Rows []datacopy.Record

	// ExternalIDField is the field upserts match on.
	ExternalIDField string

	// ChunkSize overrides the configured chunk size when positive.
	ChunkSize int
}

// Outcome is the result of one row, at the row's position in the request.
type Outcome struct {
	Index   int
	ID      string
	Success bool
	Created bool
	Errors  []datacopy.RowError
}

// ChunkResult summarizes one chunk.
type ChunkResult struct {
	Index int
	Size  int
	Good  int
	Bad   int
	JobID string

	// Err is the transport failure that lost the chunk, or nil.
	Err error
}

// Result summarizes a transfer. Good + Bad always equals the number of rows.
type Result struct {
	Type         string
	Operation    datacopy.Operation
	Chunks       int
	Good         int
	Bad          int
	Rows         []Outcome
	ChunkResults []ChunkResult
}

// Transfer writes rows in chunks and waits for every chunk.
// Rejected rows are counted, never returned as errors. Chunks lost at the job or
// network level count all their rows as bad and are returned as joined *TransportError
// values along with the partial result.
func (c *Channel) Transfer(ctx context.Context, req Request) (Result, error) {
	return c.transfer(ctx, req, c.config.MaxConcurrentChunks)
}

func (c *Channel) transfer(ctx context.Context, req Request, limit int) (Result, error) {
	res := Result{
		Type:      req.Type,
		Operation: req.Operation,
		Rows:      make([]Outcome, len(req.Rows)),
	}
	if len(req.Rows) == 0 {
		return res, nil
	}

	direct := c.config.Mode == ModeDirect || len(req.Rows) <= c.config.DirectThreshold
	size := c.config.ChunkSize
	if direct {
		size = c.config.DirectChunkSize
		limit = 1
	}
	if req.ChunkSize > 0 {
		size = req.ChunkSize
	}

	bounds := split(len(req.Rows), size)
	res.Chunks = len(bounds)
	res.ChunkResults = make([]ChunkResult, len(bounds))

	spec := datacopy.JobSpec{Type: req.Type, Operation: req.Operation, ExternalIDField: req.ExternalIDField}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, b := range bounds {
		g.Go(func() error {
			rows := req.Rows[b[0]:b[1]]
			start := time.Now()

			var (
				results []datacopy.RowResult
				jobID   string
				err     error
			)
			if direct {
				results, err = c.applyChunk(ctx, spec, rows)
			} else {
				results, jobID, err = c.runChunk(ctx, spec, rows)
			}

			cr := ChunkResult{Index: i, Size: len(rows), JobID: jobID}
			if err != nil {
				cr.Err = &TransportError{Type: req.Type, Operation: req.Operation, Chunk: i, JobID: jobID, Err: err}
			}
			c.record(ctx, &res, &cr, b[0], rows, results)
			res.ChunkResults[i] = cr

			if c.config.Collector != nil {
				c.config.Collector.IncChunks(req.Type, string(req.Operation))
				c.config.Collector.ObserveChunkDuration(string(req.Operation), time.Since(start).Seconds())
				if cr.Err != nil {
					c.config.Collector.IncChunkFailures(req.Type, string(req.Operation))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, cr := range res.ChunkResults {
		res.Good += cr.Good
		res.Bad += cr.Bad
		if cr.Err != nil {
			errs = append(errs, cr.Err)
		}
	}

	if c.config.Collector != nil {
		c.config.Collector.AddRecords(req.Type, string(req.Operation), res.Good, res.Bad)
	}
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "transfer finished",
			"type", req.Type,
			"operation", req.Operation,
			"rows", len(req.Rows),
			"chunks", res.Chunks,
			"good", res.Good,
			"bad", res.Bad)
	}

	return res, errors.Join(errs...)
}

// record fills the outcomes of one chunk. Each chunk owns a disjoint range of res.Rows.
func (c *Channel) record(ctx context.Context, res *Result, cr *ChunkResult, offset int, rows []datacopy.Record, results []datacopy.RowResult) {
	if cr.Err == nil && len(results) != len(rows) {
		cr.Err = &TransportError{
			Type:      res.Type,
			Operation: res.Operation,
			Chunk:     cr.Index,
			JobID:     cr.JobID,
			Err:       fmt.Errorf("expected %d row results, got %d", len(rows), len(results)),
		}
	}

	if cr.Err != nil {
		for j := range rows {
			res.Rows[offset+j] = Outcome{Index: offset + j, ID: rows[j].ID()}
		}
		cr.Bad = len(rows)
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "chunk lost", "type", res.Type, "chunk", cr.Index, "rows", len(rows), "error", cr.Err)
		}
		return
	}

	for j, r := range results {
		o := Outcome{Index: offset + j, ID: r.ID, Success: r.Success, Created: r.Created, Errors: r.Errors}
		if res.Operation == datacopy.OperationDelete && r.AlreadyDeleted() {
			o.Success = true
			o.Errors = nil
		}
		if o.Success {
			cr.Good++
		} else {
			cr.Bad++
			if c.config.Logger != nil {
				c.config.Logger.Debug(ctx, "row rejected", "type", res.Type, "row", o.Index, "errors", o.Errors)
			}
		}
		res.Rows[offset+j] = o
	}
}

// split returns [start, end) bounds of chunks of at most size rows.
func split(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	bounds := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		bounds = append(bounds, [2]int{start, min(start+size, n)})
	}
	return bounds
}

// TransportError is a chunk lost at the job or network level.
type TransportError struct {
	Type      string
	Operation datacopy.Operation
	Chunk     int
	JobID     string
	Err       error
}

func (e *TransportError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("transport failure: %s %s chunk %d (job %s): %v", e.Operation, e.Type, e.Chunk, e.JobID, e.Err)
	}
	return fmt.Sprintf("transport failure: %s %s chunk %d: %v", e.Operation, e.Type, e.Chunk, e.Err)
}

// Unwrap returns datacopy.ErrTransportFailure and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{datacopy.ErrTransportFailure, e.Err}
}
