//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/datacopy/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. All config values are controlled by the test and have been
// validated by the migrations package.

func applyStatements(t *testing.T, db *sql.DB, adapter migrations.Adapter, config *migrations.Config) {
	t.Helper()
	stmts, err := migrations.Statements(adapter, config)
	if err != nil {
		t.Fatalf("Failed to build statements: %v", err)
	}
	// Running twice proves the statements are idempotent
	for i := 0; i < 2; i++ {
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				t.Fatalf("Failed to execute statement: %v\n%s", err, stmt)
			}
		}
	}
}

func assertTablesUsable(t *testing.T, db *sql.DB, config *migrations.Config, placeholder func(int) string) {
	t.Helper()

	insertJob := fmt.Sprintf(
		"INSERT INTO %s (id, object_type, operation, external_id_field, state, submitted, processed, message, created_at, updated_at) VALUES (%s, %s, %s, '', 'open', 0, 0, '', 1, 1)",
		config.JobsTable, placeholder(1), placeholder(2), placeholder(3))
	if _, err := db.Exec(insertJob, "job-1", "Account", "insert"); err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}

	insertResult := fmt.Sprintf(
		"INSERT INTO %s (job_id, row_index, record_id, success, created, errors) VALUES (%s, 0, 'rec-1', true, true, '[]')",
		config.ResultsTable, placeholder(1))
	if _, err := db.Exec(insertResult, "job-1"); err != nil {
		t.Fatalf("Failed to insert job result: %v", err)
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE job_id = %s", config.ResultsTable, placeholder(1))
	if err := db.QueryRow(query, "job-1").Scan(&count); err != nil {
		t.Fatalf("Failed to count results: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 result row, got %d", count)
	}

	badState := fmt.Sprintf(
		"INSERT INTO %s (id, object_type, operation, state, message, created_at, updated_at) VALUES ('job-2', 'Account', 'insert', 'bogus', '', 1, 1)",
		config.JobsTable)
	if _, err := db.Exec(badState); err == nil {
		t.Error("Expected invalid job state to be rejected")
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	config := migrations.Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "postgres_integration.sql",
		JobsTable:      "it_jobs",
		ResultsTable:   "it_job_results",
	}
	if err := migrations.GeneratePostgres(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", config.ResultsTable, config.JobsTable))
	defer func() {
		_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", config.ResultsTable, config.JobsTable))
	}()

	applyStatements(t, db, migrations.AdapterPostgres, &config)
	assertTablesUsable(t, db, &config, func(n int) string { return fmt.Sprintf("$%d", n) })
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	config := migrations.Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "mysql_integration.sql",
		JobsTable:      "it_jobs",
		ResultsTable:   "it_job_results",
	}
	if err := migrations.GenerateMySQL(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", config.ResultsTable, config.JobsTable))
	defer func() {
		_, _ = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", config.ResultsTable, config.JobsTable))
	}()

	applyStatements(t, db, migrations.AdapterMySQL, &config)
	// MySQL accepts invalid ENUM values in non-strict mode, so only the happy path is checked
	stmts, _ := migrations.Statements(migrations.AdapterMySQL, &config)
	if len(stmts) != 2 {
		t.Errorf("Expected 2 statements for MySQL, got %d", len(stmts))
	}
}

func TestIntegrationSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:   tmpDir,
		OutputFilename: "sqlite_integration.sql",
		JobsTable:      "datacopy_jobs",
		ResultsTable:   "datacopy_job_results",
	}
	if err := migrations.GenerateSQLite(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration file: %v", err)
	}

	applyStatements(t, db, migrations.AdapterSQLite, &config)
	assertTablesUsable(t, db, &config, func(int) string { return "?" })
}
