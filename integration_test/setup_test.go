//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/getpup/datacopy/config"
	pkgdatacopy "github.com/getpup/datacopy/pkg/datacopy"
)

// schemaDDL creates a small CRM: regions matched by name, a self-referencing
// account hierarchy and contacts owned by accounts.
var schemaDDL = []string{
	`CREATE TABLE "Region" (id TEXT PRIMARY KEY, "Name" TEXT NOT NULL, "Zone" TEXT NOT NULL)`,
	`CREATE TABLE "Account" (id TEXT PRIMARY KEY, "Name" TEXT NOT NULL,
		"ParentId" TEXT REFERENCES "Account"(id),
		"RegionId" TEXT REFERENCES "Region"(id))`,
	`CREATE TABLE "Contact" (id TEXT PRIMARY KEY, "LastName" TEXT NOT NULL, "Email" TEXT UNIQUE,
		"AccountId" TEXT REFERENCES "Account"(id))`,
}

// newInstance creates a sqlite database with the CRM tables and returns its
// connection settings and an open connection for seeding and checking.
func newInstance(t *testing.T, name string) (config.Instance, *sql.DB) {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), name+".db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range schemaDDL {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return config.Instance{Driver: "sqlite3", DSN: dsn}, db
}

func connect(t *testing.T, inst config.Instance) *pkgdatacopy.Connection {
	t.Helper()

	conn, err := pkgdatacopy.Connect(context.Background(), inst, nil)
	require.NoError(t, err)
	conn.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func exec(t *testing.T, db *sql.DB, stmt string, args ...any) {
	t.Helper()
	_, err := db.Exec(stmt, args...)
	require.NoError(t, err)
}

func queryString(t *testing.T, db *sql.DB, stmt string, args ...any) string {
	t.Helper()
	var v sql.NullString
	require.NoError(t, db.QueryRow(stmt, args...).Scan(&v))
	return v.String
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}
