// Package sqlstore provides a database/sql Instance. Tables are types, columns are
// fields and foreign keys are references. Every table must have a text primary key
// named id; new records get UUIDs. Asynchronous jobs are kept in two tables created
// by EnsureSchema (see pkg/migrations).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/pkg/migrations"
	"github.com/getpup/datacopy/store"
)

// idColumn is the primary key column every table carries. It is exposed as datacopy.IDField.
const idColumn = "id"

// TableConfig configures the table names used for job bookkeeping.
type TableConfig struct {
	// JobsTable is the name of the table storing one row per job.
	JobsTable string

	// ResultsTable is the name of the table storing one row per submitted record.
	ResultsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		JobsTable:    "datacopy_jobs",
		ResultsTable: "datacopy_job_results",
	}
}

// Config configures a Store.
type Config struct {
	// Dialect selects quoting, placeholders and catalog queries.
	Dialect Dialect

	// Tables names the job tables.
	Tables TableConfig

	// Logger is optional.
	Logger datacopy.Logger
}

// Store is a database/sql implementation of store.Instance.
// Jobs are processed on background goroutines bound to the store's lifetime.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tables  TableConfig
	logger  datacopy.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Compile-time check that Store implements store.Instance.
var _ store.Instance = (*Store)(nil)

// New creates a store with default table names.
func New(db *sql.DB, dialect Dialect) *Store {
	return NewWithConfig(db, Config{Dialect: dialect, Tables: DefaultTableConfig()})
}

// NewWithConfig creates a store with custom table names.
func NewWithConfig(db *sql.DB, config Config) *Store {
	if config.Tables.JobsTable == "" || config.Tables.ResultsTable == "" {
		config.Tables = DefaultTableConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		db:      db,
		dialect: config.Dialect,
		tables:  config.Tables,
		logger:  config.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EnsureSchema creates the job tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts, err := migrations.Statements(s.dialect.adapter(), &migrations.Config{
		JobsTable:    s.tables.JobsTable,
		ResultsTable: s.tables.ResultsTable,
	})
	if err != nil {
		return fmt.Errorf("failed to build job table statements: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create job tables: %w", err)
		}
	}
	return nil
}

// MigrationDown returns the statements that drop the job tables, results first.
func (s *Store) MigrationDown() []string {
	return []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.dialect.quote(s.tables.ResultsTable)),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", s.dialect.quote(s.tables.JobsTable)),
	}
}

// Close stops background job processing and waits for running jobs to finish.
// The database handle is not closed.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// Wait blocks until every submitted batch has been processed.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Count returns the number of rows matching the query's where clause.
// Where is passed to the database verbatim and uses column names.
func (s *Store) Count(ctx context.Context, q datacopy.Query) (int, error) {
	if err := s.checkTable(ctx, q.Type); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.dialect.quote(q.Type))
	if strings.TrimSpace(q.Where) != "" {
		query += " WHERE " + q.Where
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %v", store.ErrInvalidQuery, q.Type, err)
	}
	return n, nil
}

// Query returns the rows matching the query. Where and OrderBy are passed to the database verbatim.
func (s *Store) Query(ctx context.Context, q datacopy.Query) ([]datacopy.Record, error) {
	if err := s.checkTable(ctx, q.Type); err != nil {
		return nil, err
	}

	cols := "*"
	if len(q.Fields) > 0 {
		quoted := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			quoted[i] = s.dialect.quote(column(f))
		}
		cols = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s", cols, s.dialect.quote(q.Type))
	if strings.TrimSpace(q.Where) != "" {
		query += " WHERE " + q.Where
	}
	if strings.TrimSpace(q.OrderBy) != "" {
		query += " ORDER BY " + q.OrderBy
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query %s: %v", store.ErrInvalidQuery, q.Type, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", q.Type, err)
	}
	return recs, nil
}

// Apply writes rows synchronously, one autocommitted statement per row.
func (s *Store) Apply(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error) {
	if err := s.checkTable(ctx, spec.Type); err != nil {
		return nil, err
	}
	return s.applyRows(ctx, spec, rows)
}

func (s *Store) applyRows(ctx context.Context, spec datacopy.JobSpec, rows []datacopy.Record) ([]datacopy.RowResult, error) {
	results := make([]datacopy.RowResult, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch spec.Operation {
		case datacopy.OperationInsert:
			results[i] = s.insert(ctx, spec.Type, row)
		case datacopy.OperationUpsert:
			results[i] = s.upsert(ctx, spec.Type, spec.ExternalIDField, row)
		case datacopy.OperationUpdate:
			results[i] = s.update(ctx, spec.Type, row)
		case datacopy.OperationDelete:
			results[i] = s.delete(ctx, spec.Type, row)
		default:
			results[i] = failure(row.ID(), store.CodeRejected, fmt.Sprintf("unsupported operation %s", spec.Operation))
		}
	}
	return results, nil
}

func (s *Store) insert(ctx context.Context, typ string, row datacopy.Record) datacopy.RowResult {
	if _, ok := row[datacopy.IDField]; ok {
		return failure("", store.CodeInvalidField, "cannot specify Id in an insert call", datacopy.IDField)
	}

	id := uuid.New().String()
	fields := payloadFields(row)
	cols := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	cols = append(cols, s.dialect.quote(idColumn))
	args = append(args, id)
	for _, f := range fields {
		v, err := sqlValue(row[f])
		if err != nil {
			return failure("", store.CodeInvalidField, err.Error(), f)
		}
		cols = append(cols, s.dialect.quote(column(f)))
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.quote(typ), strings.Join(cols, ", "), s.dialect.placeholders(1, len(args)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return datacopy.RowResult{Errors: []datacopy.RowError{rowError(err)}}
	}
	return datacopy.RowResult{ID: id, Success: true, Created: true}
}

func (s *Store) upsert(ctx context.Context, typ, externalField string, row datacopy.Record) datacopy.RowResult {
	key, ok := row[externalField]
	if externalField == "" || !ok || key == nil {
		return failure("", store.CodeRequiredField, "missing external id value", externalField)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 2",
		s.dialect.quote(idColumn), s.dialect.quote(typ), s.dialect.quote(column(externalField)), s.dialect.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return datacopy.RowResult{Errors: []datacopy.RowError{rowError(err)}}
	}
	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return datacopy.RowResult{Errors: []datacopy.RowError{rowError(err)}}
		}
		existing = append(existing, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return datacopy.RowResult{Errors: []datacopy.RowError{rowError(err)}}
	}

	switch len(existing) {
	case 0:
		return s.insert(ctx, typ, row)
	case 1:
		update := row.Clone()
		update[datacopy.IDField] = existing[0]
		return s.update(ctx, typ, update)
	default:
		return failure("", store.CodeDuplicateValue, fmt.Sprintf("multiple records share external id %v", key), externalField)
	}
}

func (s *Store) update(ctx context.Context, typ string, row datacopy.Record) datacopy.RowResult {
	id := row.ID()
	if id == "" {
		return failure("", store.CodeInvalidID, "missing Id", datacopy.IDField)
	}

	fields := payloadFields(row)
	if len(fields) == 0 {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
			s.dialect.quote(typ), s.dialect.quote(idColumn), s.dialect.placeholder(1))
		if err := s.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
			return datacopy.RowResult{ID: id, Errors: []datacopy.RowError{rowError(err)}}
		}
		if n == 0 {
			return failure(id, datacopy.ErrCodeEntityDeleted, "entity is deleted")
		}
		return datacopy.RowResult{ID: id, Success: true}
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		v, err := sqlValue(row[f])
		if err != nil {
			return failure(id, store.CodeInvalidField, err.Error(), f)
		}
		sets = append(sets, fmt.Sprintf("%s = %s", s.dialect.quote(column(f)), s.dialect.placeholder(i+1)))
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.dialect.quote(typ), strings.Join(sets, ", "), s.dialect.quote(idColumn), s.dialect.placeholder(len(args)))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return datacopy.RowResult{ID: id, Errors: []datacopy.RowError{rowError(err)}}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.missingOrUnchanged(ctx, typ, id)
	}
	return datacopy.RowResult{ID: id, Success: true}
}

// missingOrUnchanged tells a deleted row apart from a MySQL update that changed nothing,
// which also reports zero affected rows.
func (s *Store) missingOrUnchanged(ctx context.Context, typ, id string) datacopy.RowResult {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
		s.dialect.quote(typ), s.dialect.quote(idColumn), s.dialect.placeholder(1))
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return datacopy.RowResult{ID: id, Errors: []datacopy.RowError{rowError(err)}}
	}
	if n == 0 {
		return failure(id, datacopy.ErrCodeEntityDeleted, "entity is deleted")
	}
	return datacopy.RowResult{ID: id, Success: true}
}

func (s *Store) delete(ctx context.Context, typ string, row datacopy.Record) datacopy.RowResult {
	id := row.ID()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.dialect.quote(typ), s.dialect.quote(idColumn), s.dialect.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return datacopy.RowResult{ID: id, Errors: []datacopy.RowError{rowError(err)}}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return failure(id, datacopy.ErrCodeEntityDeleted, "entity is deleted")
	}
	return datacopy.RowResult{ID: id, Success: true}
}

// checkTable returns datacopy.ErrTypeNotFound unless typ is a user table.
func (s *Store) checkTable(ctx context.Context, typ string) error {
	if typ == "" || typ == s.tables.JobsTable || typ == s.tables.ResultsTable {
		return fmt.Errorf("%w: %q", datacopy.ErrTypeNotFound, typ)
	}

	var query string
	switch s.dialect {
	case DialectPostgres:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	case DialectMySQL:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	default:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, typ).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up table %s: %w", typ, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", datacopy.ErrTypeNotFound, typ)
	}
	return nil
}

func (s *Store) logError(ctx context.Context, msg string, keyvals ...interface{}) {
	if s.logger != nil {
		s.logger.Error(ctx, msg, keyvals...)
	}
}

func (s *Store) logDebug(ctx context.Context, msg string, keyvals ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(ctx, msg, keyvals...)
	}
}

func scanRecords(rows *sql.Rows) ([]datacopy.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]datacopy.Record, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(datacopy.Record, len(cols))
		for i, col := range cols {
			rec[fieldName(col)] = recordValue(values[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// recordValue normalises driver values to JSON-friendly types.
func recordValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// sqlValue converts a record value to a bind parameter. Nested values are stored as JSON.
func sqlValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value: %w", err)
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// payloadFields returns the record's field names without Id, sorted.
func payloadFields(row datacopy.Record) []string {
	fields := make([]string, 0, len(row))
	for f := range row {
		if f != datacopy.IDField {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

// column maps a field name to its column name.
func column(field string) string {
	if field == datacopy.IDField {
		return idColumn
	}
	return field
}

// fieldName maps a column name to its field name.
func fieldName(col string) string {
	if strings.EqualFold(col, idColumn) {
		return datacopy.IDField
	}
	return col
}

func failure(id, code, msg string, fields ...string) datacopy.RowResult {
	return datacopy.RowResult{ID: id, Errors: []datacopy.RowError{{Code: code, Message: msg, Fields: fields}}}
}
