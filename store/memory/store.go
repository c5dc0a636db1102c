// Package memory provides an in-process Instance for tests, demos and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
	"github.com/getpup/datacopy/store"
)

// RejectFunc decides whether a row is rejected before it is applied.
// Returning nil lets the row through.
type RejectFunc func(spec datacopy.JobSpec, row datacopy.Record) *datacopy.RowError

// JobFailureFunc decides whether a whole job fails instead of applying its rows.
// Returning nil lets the job run.
type JobFailureFunc func(spec datacopy.JobSpec, rows []datacopy.Record) error

// Option configures a Store.
type Option func(*Store)

// WithLatency delays the processing of every submitted batch.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// WithRejectFunc installs a hook that can reject individual rows.
func WithRejectFunc(fn RejectFunc) Option {
	return func(s *Store) {
		s.reject = fn
	}
}

// WithJobFailureFunc installs a hook that can fail whole jobs.
func WithJobFailureFunc(fn JobFailureFunc) Option {
	return func(s *Store) {
		s.failJob = fn
	}
}

// Batch is a set of rows written to the store, as it was received.
type Batch struct {
	Spec datacopy.JobSpec
	Rows []datacopy.Record
}

type job struct {
	job     datacopy.Job
	rows    []datacopy.Record
	results []datacopy.RowResult
}

// Store is an in-memory implementation of store.Instance.
// It provides thread-safe access to records and jobs using a sync.RWMutex.
// Jobs are processed on background goroutines.
type Store struct {
	mu      sync.RWMutex
	types   []string                              // type names in registration order
	descs   map[string]schema.Description         // type -> description
	records map[string]map[string]datacopy.Record // type -> id -> record
	ids     map[string][]string                   // type -> ids in insertion order
	jobs    map[string]*job                       // jobID -> job
	batches []Batch                               // every write, in arrival order

	latency time.Duration
	reject  RejectFunc
	failJob JobFailureFunc
	wg      sync.WaitGroup
}

// Compile-time check that Store implements store.Instance.
var _ store.Instance = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		descs:   make(map[string]schema.Description),
		records: make(map[string]map[string]datacopy.Record),
		ids:     make(map[string][]string),
		jobs:    make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddType registers a type. The Id field is added when the description lacks it.
// Children are derived from the reference fields of registered types.
func (s *Store) AddType(desc schema.Description) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hasID := false
	for _, f := range desc.Fields {
		if f.Name == datacopy.IDField {
			hasID = true
		}
	}
	if !hasID {
		desc.Fields = append([]schema.FieldDescription{{Name: datacopy.IDField, Type: "id"}}, desc.Fields...)
	}

	if _, ok := s.descs[desc.Name]; !ok {
		s.types = append(s.types, desc.Name)
		s.records[desc.Name] = make(map[string]datacopy.Record)
	}
	s.descs[desc.Name] = desc
}

// Seed stores records as-is, bypassing validation. Records without an Id get a new one.
// Returns the ids in order.
func (s *Store) Seed(typ string, recs ...datacopy.Record) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(recs))
	for i, rec := range recs {
		rec = rec.Clone()
		id := rec.ID()
		if id == "" {
			id = uuid.New().String()
			rec[datacopy.IDField] = id
		}
		s.put(typ, id, rec)
		ids[i] = id
	}
	return ids
}

// Records returns copies of the stored records of typ in insertion order.
func (s *Store) Records(typ string) []datacopy.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]datacopy.Record, 0, len(s.ids[typ]))
	for _, id := range s.ids[typ] {
		if rec, ok := s.records[typ][id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Get returns a copy of a stored record.
func (s *Store) Get(typ, id string) (datacopy.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[typ][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Batches returns every write batch received, in arrival order.
func (s *Store) Batches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Batch(nil), s.batches...)
}

// Wait blocks until every submitted batch has been processed.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Describe returns the registered types in registration order.
func (s *Store) Describe(ctx context.Context) ([]schema.Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := make(map[string][]schema.ChildDescription)
	for _, name := range s.types {
		for _, f := range s.descs[name].Fields {
			if f.Type != schema.FieldTypeReference {
				continue
			}
			for _, target := range f.ReferenceTo {
				children[target] = append(children[target], schema.ChildDescription{Type: name, Field: f.Name})
			}
		}
	}

	out := make([]schema.Description, 0, len(s.types))
	for _, name := range s.types {
		desc := s.descs[name]
		desc.Fields = append([]schema.FieldDescription(nil), desc.Fields...)
		desc.Children = append(append([]schema.ChildDescription(nil), desc.Children...), children[name]...)
		out = append(out, desc)
	}
	return out, nil
}

// Count returns the number of records matching the query.
func (s *Store) Count(ctx context.Context, q datacopy.Query) (int, error) {
	recs, err := s.selectRecords(q)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Query returns the records matching the query.
// Supported where terms are "field = value", "field != value" and "field IN (...)", joined by AND.
func (s *Store) Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, error) {
	recs, err := s.selectRecords(q)
	if err != nil {
		return nil, err
	}

	terms, err := parseOrderBy(q.OrderBy)
	if err != nil {
		return nil, err
	}
	sortRecords(recs, terms)

	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	if len(q.Fields) == 0 {
		return recs, nil
	}

	out := make([]datacopy.Record, len(recs))
	for i, rec := range recs {
		projected := make(datacopy.Record, len(q.Fields))
		for _, f := range q.Fields {
			projected[f] = rec[f]
		}
		out[i] = projected
	}
	return out, nil
}

func (s *Store) selectRecords(q datacopy.Query) ([]datacopy.Record, error) {
	conds, err := parseWhere(q.Where)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	desc, ok := s.descs[q.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", datacopy.ErrTypeNotFound, q.Type)
	}
	for _, f := range q.Fields {
		if _, ok := field(desc, f); !ok {
			return nil, fmt.Errorf("%w: no field %s on %s", store.ErrInvalidQuery, f, q.Type)
		}
	}

	out := make([]datacopy.Record, 0, len(s.ids[q.Type]))
	for _, id := range s.ids[q.Type] {
		rec, ok := s.records[q.Type][id]
		if !ok {
			continue
		}
		matched := true
		for _, c := range conds {
			if !c.match(rec) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// CreateJob opens a job on a registered type.
func (s *Store) CreateJob(ctx context.Context, spec datacopy.JobSpec) (datacopy.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.descs[spec.Type]; !ok {
		return datacopy.Job{}, fmt.Errorf("%w: %s", datacopy.ErrTypeNotFound, spec.Type)
	}

	now := time.Now()
	j := &job{job: datacopy.Job{
		ID:        uuid.New().String(),
		Spec:      spec,
		State:     datacopy.JobStateOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	s.jobs[j.job.ID] = j
	return j.job, nil
}

// SubmitBatch queues rows on an open job and processes them in the background.
// A job takes a single batch.
func (s *Store) SubmitBatch(ctx context.Context, jobID string, rows []datacopy.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if j.job.State != datacopy.JobStateOpen {
		return store.ErrJobNotOpen
	}

	j.rows = cloneRows(rows)
	j.job.State = datacopy.JobStateInProgress
	j.job.Submitted = len(rows)
	j.job.UpdatedAt = time.Now()

	s.wg.Add(1)
	go s.process(j)
	return nil
}

func (s *Store) process(j *job) {
	defer s.wg.Done()

	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failJob != nil {
		if err := s.failJob(j.job.Spec, j.rows); err != nil {
			j.job.State = datacopy.JobStateFailed
			j.job.Message = err.Error()
			j.job.UpdatedAt = time.Now()
			return
		}
	}

	j.results = s.applyLocked(j.job.Spec, j.rows)
	j.job.Processed = len(j.results)
	j.job.State = datacopy.JobStateCompleted
	j.job.UpdatedAt = time.Now()
}

// GetJob returns the current state of a job.
func (s *Store) GetJob(ctx context.Context, jobID string) (datacopy.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return datacopy.Job{}, store.ErrJobNotFound
	}
	return j.job, nil
}

// GetJobResults returns the row results of a job. They are empty until the job completes.
func (s *Store) GetJobResults(ctx context.Context, jobID string) ([]datacopy.RowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return append([]datacopy.RowResult(nil), j.results...), nil
}

// CloseJob closes an open job. Jobs that already finished keep their state.
func (s *Store) CloseJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return store.ErrJobNotFound
	}
	if j.job.State == datacopy.JobStateOpen {
		j.job.State = datacopy.JobStateClosed
		j.job.UpdatedAt = time.Now()
	}
	return nil
}

// Apply writes rows synchronously.
func (s *Store) Apply(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.descs[spec.Type]; !ok {
		return nil, fmt.Errorf("%w: %s", datacopy.ErrTypeNotFound, spec.Type)
	}
	return s.applyLocked(spec, cloneRows(rows)), nil
}

func cloneRows(rows []datacopy.Record) []datacopy.Record {
	out := make([]datacopy.Record, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}
