package datacopy

import "time"

// IDField is the name of the identifier field carried by every record.
const IDField = "Id"

// Record is a single row read from or written to an instance, keyed by field name.
type Record map[string]any

// ID returns the record's identifier, or "" when it has none.
func (r Record) ID() string {
	if v, ok := r[IDField]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Operation is the kind of write or read sent to an instance.
type Operation string

const (
	// OperationInsert creates new records. The destination assigns ids.
	OperationInsert Operation = "insert"

	// OperationUpsert creates or updates records matched on an external id field.
	OperationUpsert Operation = "upsert"

	// OperationUpdate updates records identified by their Id.
	OperationUpdate Operation = "update"

	// OperationDelete deletes records identified by their Id.
	OperationDelete Operation = "delete"

	// OperationQuery reads records.
	OperationQuery Operation = "query"
)

// Phase is a step of a migration run.
type Phase string

const (
	// PhaseIdle indicates the run has not started.
	PhaseIdle Phase = "idle"

	// PhaseDeleting indicates destination records are being removed in reverse load order.
	PhaseDeleting Phase = "deleting"

	// PhaseResolvingIdentities indicates metadata types are being matched by business key.
	PhaseResolvingIdentities Phase = "resolving_identities"

	// PhaseLoading indicates data types are being loaded in dependency order.
	PhaseLoading Phase = "loading"

	// PhaseResolvingDeferredReferences indicates two-pass reference fields are being written.
	PhaseResolvingDeferredReferences Phase = "resolving_deferred_references"

	// PhaseDone indicates the run completed.
	PhaseDone Phase = "done"

	// PhaseFailed indicates the run stopped on a fatal error.
	// No transition leaves this phase.
	PhaseFailed Phase = "failed"
)

// JobState is the state of an asynchronous transfer job on an instance.
type JobState string

const (
	// JobStateOpen indicates the job accepts batches.
	JobStateOpen JobState = "open"

	// JobStateInProgress indicates submitted rows are being processed.
	JobStateInProgress JobState = "in_progress"

	// JobStateCompleted indicates every submitted row has a result.
	JobStateCompleted JobState = "completed"

	// JobStateFailed indicates the job failed as a whole. Row results may be missing.
	JobStateFailed JobState = "failed"

	// JobStateAborted indicates the job was aborted before completing.
	JobStateAborted JobState = "aborted"

	// JobStateClosed indicates the job was closed by its owner.
	JobStateClosed JobState = "closed"
)

// Terminal reports whether no further progress is expected for a job in this state.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateAborted, JobStateClosed:
		return true
	}
	return false
}

// JobSpec describes the work a job performs.
type JobSpec struct {
	// Type is the object type the job writes to.
	Type string

	// Operation is the write performed for every submitted row.
	Operation Operation

	// ExternalIDField is the field upserts match on. Only used with OperationUpsert.
	ExternalIDField string
}

// Job is an asynchronous unit of work on an instance.
type Job struct {
	// ID is the unique identifier for this job.
	ID string

	// Spec is the work the job performs.
	Spec JobSpec

	// State is the current state of the job.
	State JobState

	// Submitted is the number of rows submitted to the job.
	Submitted int

	// Processed is the number of rows that have a result.
	Processed int

	// Message carries the failure reason for failed or aborted jobs.
	Message string

	// CreatedAt is when the job was created.
	CreatedAt time.Time

	// UpdatedAt is when the job last changed state.
	UpdatedAt time.Time
}

// ErrCodeEntityDeleted is the row error code reported when deleting a record that is already gone.
const ErrCodeEntityDeleted = "ENTITY_IS_DELETED"

// RowError is one reason a row was rejected.
type RowError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// RowResult is the outcome of a single submitted row, in submission order.
type RowResult struct {
	// ID is the record id on the instance. For inserts this is the newly assigned id.
	ID string

	// Success reports whether the row was applied.
	Success bool

	// Created reports whether the row produced a new record.
	Created bool

	// Errors holds the rejection reasons for unsuccessful rows.
	Errors []RowError
}

// AlreadyDeleted reports whether the row failed only because the record no longer exists.
func (r RowResult) AlreadyDeleted() bool {
	if r.Success || len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if e.Code != ErrCodeEntityDeleted {
			return false
		}
	}
	return true
}

// Query selects records of one type.
type Query struct {
	// Type is the object type to read.
	Type string

	// Fields lists the fields to return. Empty means every field.
	Fields []string

	// Where is an optional filter predicate in the instance's query syntax.
	Where string

	// OrderBy is an optional ordering clause, e.g. "Name, CreatedDate DESC".
	OrderBy string

	// Limit caps the number of records returned. Zero means no limit.
	Limit int
}

// Export is the captured snapshot of one type on one instance.
type Export struct {
	Total   int      `json:"total"`
	Fetched int      `json:"fetched"`
	Records []Record `json:"records"`
}
