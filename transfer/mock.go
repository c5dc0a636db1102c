package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/getpup/datacopy"
)

// MockTransferrer is a mock implementation of Transferrer for testing.
type MockTransferrer struct {
	mu sync.Mutex

	TransferFunc    func(ctx context.Context, req Request) (Result, error)
	QueryFunc       func(ctx context.Context, q datacopy.Query) ([]datacopy.Record, int, error)
	DeleteWhereFunc func(ctx context.Context, typ, where string) (Result, error)
	DeleteIDsFunc   func(ctx context.Context, typ string, ids []string) (Result, error)

	TransferCalls    []Request
	QueryCalls       []datacopy.Query
	DeleteWhereCalls []DeleteWhereCall
	DeleteIDsCalls   []DeleteIDsCall
}

// DeleteWhereCall records the parameters of a single DeleteWhere call.
type DeleteWhereCall struct {
	Type  string
	Where string
}

// DeleteIDsCall records the parameters of a single DeleteIDs call.
type DeleteIDsCall struct {
	Type string
	IDs  []string
}

// Compile-time check that MockTransferrer implements Transferrer.
var _ Transferrer = (*MockTransferrer)(nil)

// NewMockTransferrer creates a new MockTransferrer with an empty call history.
func NewMockTransferrer() *MockTransferrer {
	return &MockTransferrer{}
}

// Transfer records the call, then:
// - If TransferFunc is set, calls and returns it
// - Otherwise, reports every row as created with the id "<Type>-<index>"
func (m *MockTransferrer) Transfer(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.TransferCalls = append(m.TransferCalls, req)
	m.mu.Unlock()

	if m.TransferFunc != nil {
		return m.TransferFunc(ctx, req)
	}
	return SucceedAll(req), nil
}

// Query records the call, then calls QueryFunc if set. Returns no records otherwise.
func (m *MockTransferrer) Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, int, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, q)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q)
	}
	return nil, 0, nil
}

// DeleteWhere records the call, then calls DeleteWhereFunc if set. Returns an empty result otherwise.
func (m *MockTransferrer) DeleteWhere(ctx context.Context, typ, where string) (Result, error) {
	m.mu.Lock()
	m.DeleteWhereCalls = append(m.DeleteWhereCalls, DeleteWhereCall{Type: typ, Where: where})
	m.mu.Unlock()

	if m.DeleteWhereFunc != nil {
		return m.DeleteWhereFunc(ctx, typ, where)
	}
	return Result{Type: typ, Operation: datacopy.OperationDelete}, nil
}

// DeleteIDs records the call, then calls DeleteIDsFunc if set. Reports every id deleted otherwise.
func (m *MockTransferrer) DeleteIDs(ctx context.Context, typ string, ids []string) (Result, error) {
	m.mu.Lock()
	m.DeleteIDsCalls = append(m.DeleteIDsCalls, DeleteIDsCall{Type: typ, IDs: ids})
	m.mu.Unlock()

	if m.DeleteIDsFunc != nil {
		return m.DeleteIDsFunc(ctx, typ, ids)
	}
	rows := make([]datacopy.Record, len(ids))
	for i, id := range ids {
		rows[i] = datacopy.Record{datacopy.IDField: id}
	}
	return SucceedAll(Request{Type: typ, Operation: datacopy.OperationDelete, Rows: rows}), nil
}

// Reset clears the call history.
func (m *MockTransferrer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransferCalls = nil
	m.QueryCalls = nil
	m.DeleteWhereCalls = nil
	m.DeleteIDsCalls = nil
}

// SucceedAll builds a single-chunk result in which every row succeeded.
// Inserted and upserted rows get the id "<Type>-<index>"; other rows keep theirs.
func SucceedAll(req Request) Result {
	res := Result{
		Type:      req.Type,
		Operation: req.Operation,
		Good:      len(req.Rows),
		Rows:      make([]Outcome, len(req.Rows)),
	}
	for i, row := range req.Rows {
		o := Outcome{Index: i, ID: row.ID(), Success: true}
		if req.Operation == datacopy.OperationInsert || req.Operation == datacopy.OperationUpsert {
			o.ID = fmt.Sprintf("%s-%d", req.Type, i)
			o.Created = true
		}
		res.Rows[i] = o
	}
	if len(req.Rows) > 0 {
		res.Chunks = 1
		res.ChunkResults = []ChunkResult{{Size: len(req.Rows), Good: len(req.Rows)}}
	}
	return res
}
