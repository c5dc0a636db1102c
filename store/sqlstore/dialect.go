package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/getpup/datacopy"
	"github.com/getpup/datacopy/pkg/migrations"
	"github.com/getpup/datacopy/store"
)

// Dialect names the SQL flavour spoken by the database.
type Dialect string

const (
	// DialectPostgres uses github.com/lib/pq.
	DialectPostgres Dialect = "postgres"

	// DialectMySQL uses github.com/go-sql-driver/mysql.
	DialectMySQL Dialect = "mysql"

	// DialectSQLite uses github.com/mattn/go-sqlite3.
	DialectSQLite Dialect = "sqlite3"
)

// ParseDialect maps a driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("%w: unsupported driver %q", datacopy.ErrConfiguration, driver)
}

// Driver returns the database/sql driver name registered for the dialect.
func (d Dialect) Driver() string {
	return string(d)
}

func (d Dialect) adapter() migrations.Adapter {
	switch d {
	case DialectPostgres:
		return migrations.AdapterPostgres
	case DialectMySQL:
		return migrations.AdapterMySQL
	default:
		return migrations.AdapterSQLite
	}
}

// quote quotes an identifier.
func (d Dialect) quote(name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// rowError maps a driver error to a row error code. Errors the mapping does not
// recognise are reported as rejected rows carrying the driver message.
func rowError(err error) datacopy.RowError {
	code := store.CodeRejected

	var pqErr *pq.Error
	var myErr *mysql.MySQLError
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pqErr):
		switch pqErr.Code {
		case "23503":
			code = store.CodeInvalidReference
		case "23502":
			code = store.CodeRequiredField
		case "23505":
			code = store.CodeDuplicateValue
		case "42703":
			code = store.CodeInvalidField
		}
		if pqErr.Column != "" {
			return datacopy.RowError{Code: code, Message: pqErr.Message, Fields: []string{fieldName(pqErr.Column)}}
		}
		return datacopy.RowError{Code: code, Message: pqErr.Message}
	case errors.As(err, &myErr):
		switch myErr.Number {
		case 1452:
			code = store.CodeInvalidReference
		case 1048, 1364:
			code = store.CodeRequiredField
		case 1062:
			code = store.CodeDuplicateValue
		case 1054:
			code = store.CodeInvalidField
		}
		return datacopy.RowError{Code: code, Message: myErr.Message}
	case errors.As(err, &liteErr):
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			code = store.CodeInvalidReference
		case sqlite3.ErrConstraintNotNull:
			code = store.CodeRequiredField
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			code = store.CodeDuplicateValue
		}
		if unknownColumn(liteErr.Error()) {
			code = store.CodeInvalidField
		}
		return datacopy.RowError{Code: code, Message: liteErr.Error()}
	}

	msg := err.Error()
	if unknownColumn(msg) {
		code = store.CodeInvalidField
	}
	return datacopy.RowError{Code: code, Message: msg}
}

// unknownColumn matches the sqlite messages for columns that do not exist.
func unknownColumn(msg string) bool {
	return strings.Contains(msg, "no such column") || strings.Contains(msg, "has no column named")
}
