package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/datacopy"
)

// runChunk runs one chunk as a job: create, submit, await, read results, close.
func (c *Channel) runChunk(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, string, error) {
	inst := c.config.Instance

	job, err := inst.CreateJob(ctx, spec)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create job: %w", err)
	}
	defer c.closeJob(ctx, job.ID)

	if err := inst.SubmitBatch(ctx, job.ID, rows); err != nil {
		return nil, job.ID, fmt.Errorf("failed to submit batch: %w", err)
	}

	job, err = c.await(ctx, job.ID)
	if err != nil {
		return nil, job.ID, err
	}
	if job.State != datacopy.JobStateCompleted {
		return nil, job.ID, fmt.Errorf("job ended %s: %s", job.State, job.Message)
	}

	results, err := inst.GetJobResults(ctx, job.ID)
	if err != nil {
		return nil, job.ID, fmt.Errorf("failed to get job results: %w", err)
	}
	return results, job.ID, nil
}

// await polls the job until it reaches a terminal state.
// Returns datacopy.ErrJobTimeout if PollTimeout is exceeded.
func (c *Channel) await(ctx context.Context, jobID string) (datacopy.Job, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return datacopy.Job{ID: jobID}, ctx.Err()
		case <-ticker.C:
			job, err := c.config.Instance.GetJob(ctx, jobID)
			if err != nil {
				return datacopy.Job{ID: jobID}, fmt.Errorf("failed to get job: %w", err)
			}

			if job.State.Terminal() {
				if c.config.Logger != nil {
					c.config.Logger.Debug(ctx, "job finished", "jobID", jobID, "state", job.State, "processed", job.Processed)
				}
				return job, nil
			}

			if time.Since(startTime) > c.config.PollTimeout {
				return job, fmt.Errorf("%w: job %s still %s after %s", datacopy.ErrJobTimeout, jobID, job.State, c.config.PollTimeout)
			}
		}
	}
}

// closeJob closes a job, logging failures. Closing is best effort: the outcome of the
// chunk is already known.
func (c *Channel) closeJob(ctx context.Context, jobID string) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := c.config.Instance.CloseJob(ctx, jobID); err != nil && c.config.Logger != nil {
		c.config.Logger.Error(ctx, "failed to close job", "jobID", jobID, "error", err)
	}
}

// applyChunk writes one chunk synchronously.
func (c *Channel) applyChunk(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error) {
	results, err := c.config.Instance.Apply(ctx, spec, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to apply rows: %w", err)
	}
	return results, nil
}
