package store

import (
	"context"
	"sync"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/schema"
)

// MockInstance is a configurable mock implementation of Instance for use in tests.
// It allows setting up return values, tracking method calls, and injecting errors.
type MockInstance struct {
	mu sync.Mutex

	DescribeFunc      func(ctx context.Context) ([]schema.Description, error)
	CountFunc         func(ctx context.Context, q datacopy.Query) (int, error)
	QueryFunc         func(ctx context.Context, q datacopy.Query) ([]datacopy.Record, error)
	CreateJobFunc     func(ctx context.Context, spec datacopy.JobSpec) (datacopy.Job, error)
	SubmitBatchFunc   func(ctx context.Context, jobID string, rows []datacopy.Record) error
	GetJobFunc        func(ctx context.Context, jobID string) (datacopy.Job, error)
	GetJobResultsFunc func(ctx context.Context, jobID string) ([]datacopy.RowResult, error)
	CloseJobFunc      func(ctx context.Context, jobID string) error
	ApplyFunc         func(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error)

	// Call tracking
	DescribeCalls      int
	CountCalls         []datacopy.Query
	QueryCalls         []datacopy.Query
	CreateJobCalls     []datacopy.JobSpec
	SubmitBatchCalls   []SubmitBatchCall
	GetJobCalls        []string
	GetJobResultsCalls []string
	CloseJobCalls      []string
	ApplyCalls         []ApplyCall
}

// SubmitBatchCall records the parameters of a single SubmitBatch call.
type SubmitBatchCall struct {
	JobID string
	Rows  []datacopy.Record
}

// ApplyCall records the parameters of a single Apply call.
type ApplyCall struct {
	Spec datacopy.JobSpec
	Rows []datacopy.Record
}

// Compile-time check that MockInstance implements Instance.
var _ Instance = (*MockInstance)(nil)

// NewMockInstance creates a new mock instance.
func NewMockInstance() *MockInstance {
	return &MockInstance{}
}

// Describe implements Instance.
func (m *MockInstance) Describe(ctx context.Context) ([]schema.Description, error) {
	m.mu.Lock()
	m.DescribeCalls++
	m.mu.Unlock()

	if m.DescribeFunc != nil {
		return m.DescribeFunc(ctx)
	}
	return nil, nil
}

// Count implements Instance.
func (m *MockInstance) Count(ctx context.Context, q datacopy.Query) (int, error) {
	m.mu.Lock()
	m.CountCalls = append(m.CountCalls, q)
	m.mu.Unlock()

	if m.CountFunc != nil {
		return m.CountFunc(ctx, q)
	}
	return 0, nil
}

// Query implements Instance.
func (m *MockInstance) Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, q)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q)
	}
	return []datacopy.Record{}, nil
}

// CreateJob implements Instance.
func (m *MockInstance) CreateJob(ctx context.Context, spec datacopy.JobSpec) (datacopy.Job, error) {
	m.mu.Lock()
	m.CreateJobCalls = append(m.CreateJobCalls, spec)
	m.mu.Unlock()

	if m.CreateJobFunc != nil {
		return m.CreateJobFunc(ctx, spec)
	}
	return datacopy.Job{Spec: spec, State: datacopy.JobStateOpen}, nil
}

// SubmitBatch implements Instance.
func (m *MockInstance) SubmitBatch(ctx context.Context, jobID string, rows []datacopy.Record) error {
	m.mu.Lock()
	m.SubmitBatchCalls = append(m.SubmitBatchCalls, SubmitBatchCall{JobID: jobID, Rows: rows})
	m.mu.Unlock()

	if m.SubmitBatchFunc != nil {
		return m.SubmitBatchFunc(ctx, jobID, rows)
	}
	return nil
}

// GetJob implements Instance.
func (m *MockInstance) GetJob(ctx context.Context, jobID string) (datacopy.Job, error) {
	m.mu.Lock()
	m.GetJobCalls = append(m.GetJobCalls, jobID)
	m.mu.Unlock()

	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, jobID)
	}
	return datacopy.Job{}, ErrJobNotFound
}

// GetJobResults implements Instance.
func (m *MockInstance) GetJobResults(ctx context.Context, jobID string) ([]datacopy.RowResult, error) {
	m.mu.Lock()
	m.GetJobResultsCalls = append(m.GetJobResultsCalls, jobID)
	m.mu.Unlock()

	if m.GetJobResultsFunc != nil {
		return m.GetJobResultsFunc(ctx, jobID)
	}
	return []datacopy.RowResult{}, nil
}

// CloseJob implements Instance.
func (m *MockInstance) CloseJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	m.CloseJobCalls = append(m.CloseJobCalls, jobID)
	m.mu.Unlock()

	if m.CloseJobFunc != nil {
		return m.CloseJobFunc(ctx, jobID)
	}
	return nil
}

// Apply implements Instance.
func (m *MockInstance) Apply(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error) {
	m.mu.Lock()
	m.ApplyCalls = append(m.ApplyCalls, ApplyCall{Spec: spec, Rows: rows})
	m.mu.Unlock()

	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, spec, rows)
	}
	return []datacopy.RowResult{}, nil
}

// Reset clears all call tracking data.
func (m *MockInstance) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DescribeCalls = 0
	m.CountCalls = nil
	m.QueryCalls = nil
	m.CreateJobCalls = nil
	m.SubmitBatchCalls = nil
	m.GetJobCalls = nil
	m.GetJobResultsCalls = nil
	m.CloseJobCalls = nil
	m.ApplyCalls = nil
}
