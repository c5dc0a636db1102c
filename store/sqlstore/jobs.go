package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/store"
)

// CreateJob inserts an open job row.
func (s *Store) CreateJob(ctx context.Context, spec datacopy.JobSpec) (datacopy.Job, error) {
	if err := s.checkTable(ctx, spec.Type); err != nil {
		return datacopy.Job{}, err
	}

	now := time.Now()
	job := datacopy.Job{
		ID:        uuid.New().String(),
		Spec:      spec,
		State:     datacopy.JobStateOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, object_type, operation, external_id_field, state, submitted, processed, message, created_at, updated_at) 
		VALUES (%s)`, s.dialect.quote(s.tables.JobsTable), s.dialect.placeholders(1, 10))
	_, err := s.db.ExecContext(ctx, query,
		job.ID, spec.Type, string(spec.Operation), spec.ExternalIDField, string(job.State),
		0, 0, "", now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return datacopy.Job{}, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

// SubmitBatch moves an open job to in progress and applies its rows in the background.
func (s *Store) SubmitBatch(ctx context.Context, jobID string, rows []datacopy.Record) error {
	query := fmt.Sprintf(`UPDATE %s SET state = %s, submitted = %s, updated_at = %s 
		WHERE id = %s AND state = %s`,
		s.dialect.quote(s.tables.JobsTable),
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3),
		s.dialect.placeholder(4), s.dialect.placeholder(5))
	res, err := s.db.ExecContext(ctx, query,
		string(datacopy.JobStateInProgress), len(rows), time.Now().UnixMilli(), jobID, string(datacopy.JobStateOpen))
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}
	if n == 0 {
		if _, err := s.GetJob(ctx, jobID); err != nil {
			return err
		}
		return store.ErrJobNotOpen
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	batch := make([]datacopy.Record, len(rows))
	for i, row := range rows {
		batch[i] = row.Clone()
	}

	s.wg.Add(1)
	go s.process(job, batch)
	return nil
}

func (s *Store) process(job datacopy.Job, rows []datacopy.Record) {
	defer s.wg.Done()

	ctx := s.ctx
	results, err := s.applyRows(ctx, job.Spec, rows)
	if err != nil {
		s.logError(ctx, "job failed", "job_id", job.ID, "type", job.Spec.Type, "error", err)
		s.finish(job.ID, datacopy.JobStateFailed, err.Error())
		return
	}

	if err := s.storeResults(ctx, job.ID, results); err != nil {
		s.logError(ctx, "failed to store job results", "job_id", job.ID, "error", err)
		s.finish(job.ID, datacopy.JobStateFailed, err.Error())
		return
	}

	s.logDebug(ctx, "job completed", "job_id", job.ID, "type", job.Spec.Type, "rows", len(results))
}

// storeResults writes the row results and completes the job in one transaction.
func (s *Store) storeResults(ctx context.Context, jobID string, results []datacopy.RowResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := fmt.Sprintf(`INSERT INTO %s (job_id, row_index, record_id, success, created, errors) VALUES (%s)`,
		s.dialect.quote(s.tables.ResultsTable), s.dialect.placeholders(1, 6))
	for i, r := range results {
		errs := r.Errors
		if errs == nil {
			errs = []datacopy.RowError{}
		}
		encoded, err := json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("failed to encode row errors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, jobID, i, r.ID, r.Success, r.Created, string(encoded)); err != nil {
			return fmt.Errorf("failed to insert job result: %w", err)
		}
	}

	update := fmt.Sprintf(`UPDATE %s SET state = %s, processed = %s, updated_at = %s WHERE id = %s`,
		s.dialect.quote(s.tables.JobsTable),
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4))
	if _, err := tx.ExecContext(ctx, update, string(datacopy.JobStateCompleted), len(results), time.Now().UnixMilli(), jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// finish records a terminal state outside any transaction. It uses a fresh context
// so a job interrupted by Close is still marked.
func (s *Store) finish(jobID string, state datacopy.JobState, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET state = %s, message = %s, updated_at = %s WHERE id = %s`,
		s.dialect.quote(s.tables.JobsTable),
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4))
	if _, err := s.db.ExecContext(ctx, query, string(state), message, time.Now().UnixMilli(), jobID); err != nil {
		s.logError(ctx, "failed to update job state", "job_id", jobID, "state", state, "error", err)
	}
}

// GetJob returns the current state of a job.
// Returns store.ErrJobNotFound if no job has the id.
func (s *Store) GetJob(ctx context.Context, jobID string) (datacopy.Job, error) {
	query := fmt.Sprintf(`
		SELECT id, object_type, operation, external_id_field, state, submitted, processed, message, created_at, updated_at 
		FROM %s 
		WHERE id = %s
	`, s.dialect.quote(s.tables.JobsTable), s.dialect.placeholder(1))

	var (
		job                  datacopy.Job
		operation, state     string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.Spec.Type,
		&operation,
		&job.Spec.ExternalIDField,
		&state,
		&job.Submitted,
		&job.Processed,
		&job.Message,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return datacopy.Job{}, store.ErrJobNotFound
	}
	if err != nil {
		return datacopy.Job{}, fmt.Errorf("failed to get job: %w", err)
	}

	job.Spec.Operation = datacopy.Operation(operation)
	job.State = datacopy.JobState(state)
	job.CreatedAt = time.UnixMilli(createdAt)
	job.UpdatedAt = time.UnixMilli(updatedAt)
	return job, nil
}

// GetJobResults returns the row results of a job in submission order.
// The list is empty until the job completes.
func (s *Store) GetJobResults(ctx context.Context, jobID string) ([]datacopy.RowResult, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT record_id, success, created, errors 
		FROM %s 
		WHERE job_id = %s 
		ORDER BY row_index
	`, s.dialect.quote(s.tables.ResultsTable), s.dialect.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job results: %w", err)
	}
	defer rows.Close()

	results := make([]datacopy.RowResult, 0)
	for rows.Next() {
		var (
			r       datacopy.RowResult
			encoded string
		)
		if err := rows.Scan(&r.ID, &r.Success, &r.Created, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan job result: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &r.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode row errors: %w", err)
		}
		if len(r.Errors) == 0 {
			r.Errors = nil
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job results: %w", err)
	}
	return results, nil
}

// CloseJob closes an open job. Jobs that already started keep their state.
func (s *Store) CloseJob(ctx context.Context, jobID string) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET state = %s, updated_at = %s WHERE id = %s AND state = %s`,
		s.dialect.quote(s.tables.JobsTable),
		s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3), s.dialect.placeholder(4))
	if _, err := s.db.ExecContext(ctx, query, string(datacopy.JobStateClosed), time.Now().UnixMilli(), jobID, string(datacopy.JobStateOpen)); err != nil {
		return fmt.Errorf("failed to close job: %w", err)
	}
	return nil
}
