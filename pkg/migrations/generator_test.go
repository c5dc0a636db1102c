package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testConfig(t *testing.T, filename string) Config {
	t.Helper()
	return Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: filename,
		JobsTable:      "datacopy_jobs",
		ResultsTable:   "datacopy_job_results",
	}
}

func readGenerated(t *testing.T, config Config) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	return string(content)
}

func TestGeneratePostgres(t *testing.T) {
	config := testConfig(t, "test_migration.sql")

	if err := GeneratePostgres(&config); err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	sql := readGenerated(t, config)

	required := []string{
		"-- Database: PostgreSQL",
		"CREATE TABLE IF NOT EXISTS datacopy_jobs",
		"id TEXT PRIMARY KEY",
		"object_type TEXT NOT NULL",
		"CHECK (operation IN ('insert', 'upsert', 'update', 'delete'))",
		"CHECK (state IN ('open', 'in_progress', 'completed', 'failed', 'aborted', 'closed'))",
		"created_at BIGINT NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_datacopy_jobs_state",
		"CREATE TABLE IF NOT EXISTS datacopy_job_results",
		"REFERENCES datacopy_jobs(id) ON DELETE CASCADE",
		"PRIMARY KEY (job_id, row_index)",
		"errors TEXT NOT NULL DEFAULT '[]'",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateMySQL(t *testing.T) {
	config := testConfig(t, "test_migration.sql")

	if err := GenerateMySQL(&config); err != nil {
		t.Fatalf("GenerateMySQL failed: %v", err)
	}

	sql := readGenerated(t, config)

	required := []string{
		"-- Database: MySQL/MariaDB",
		"CREATE TABLE IF NOT EXISTS datacopy_jobs",
		"id VARCHAR(64) PRIMARY KEY",
		"operation ENUM('insert', 'upsert', 'update', 'delete') NOT NULL",
		"INDEX idx_datacopy_jobs_state (state, updated_at)",
		"FOREIGN KEY (job_id) REFERENCES datacopy_jobs(id) ON DELETE CASCADE",
		"ENGINE=InnoDB",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateSQLite(t *testing.T) {
	config := testConfig(t, "test_migration.sql")

	if err := GenerateSQLite(&config); err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}

	sql := readGenerated(t, config)

	required := []string{
		"-- Database: SQLite",
		"CREATE TABLE IF NOT EXISTS datacopy_jobs",
		"created_at INTEGER NOT NULL",
		"CREATE TABLE IF NOT EXISTS datacopy_job_results",
		"PRIMARY KEY (job_id, row_index)",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
	if strings.Contains(sql, "ENGINE=InnoDB") {
		t.Error("SQLite migration must not carry MySQL table options")
	}
}

func TestStatements(t *testing.T) {
	config := DefaultConfig()

	for _, adapter := range []Adapter{AdapterPostgres, AdapterMySQL, AdapterSQLite} {
		t.Run(string(adapter), func(t *testing.T) {
			stmts, err := Statements(adapter, &config)
			if err != nil {
				t.Fatalf("Statements failed: %v", err)
			}
			if len(stmts) < 2 {
				t.Fatalf("expected at least 2 statements, got %d", len(stmts))
			}
			if !strings.Contains(stmts[0], "CREATE TABLE IF NOT EXISTS datacopy_jobs") {
				t.Errorf("jobs table must be created first, got: %s", stmts[0])
			}
			last := stmts[len(stmts)-1]
			if !strings.Contains(last, "CREATE TABLE IF NOT EXISTS datacopy_job_results") {
				t.Errorf("results table must be created last, got: %s", last)
			}
			for _, stmt := range stmts {
				if strings.HasSuffix(strings.TrimSpace(stmt), ";") {
					t.Errorf("statement must not end with a semicolon: %s", stmt)
				}
			}
		})
	}

	t.Run("unsupported adapter", func(t *testing.T) {
		if _, err := Statements(Adapter("oracle"), &config); err == nil {
			t.Error("expected error for unsupported adapter")
		}
	})
}

func TestCustomTableNames(t *testing.T) {
	config := testConfig(t, "custom.sql")
	config.JobsTable = "copy_jobs"
	config.ResultsTable = "copy_results"

	if err := GeneratePostgres(&config); err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	sql := readGenerated(t, config)

	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS copy_jobs") {
		t.Error("Custom jobs table name not used")
	}
	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS copy_results") {
		t.Error("Custom results table name not used")
	}
	if !strings.Contains(sql, "REFERENCES copy_jobs(id)") {
		t.Error("Results table must reference the custom jobs table")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.OutputFolder != "migrations" {
		t.Errorf("Expected OutputFolder to be 'migrations', got %s", config.OutputFolder)
	}
	if config.JobsTable != "datacopy_jobs" {
		t.Errorf("Expected JobsTable to be 'datacopy_jobs', got %s", config.JobsTable)
	}
	if config.ResultsTable != "datacopy_job_results" {
		t.Errorf("Expected ResultsTable to be 'datacopy_job_results', got %s", config.ResultsTable)
	}
	if !strings.HasSuffix(config.OutputFilename, "_init_datacopy_jobs.sql") {
		t.Errorf("Expected OutputFilename to end with '_init_datacopy_jobs.sql', got %s", config.OutputFilename)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		jobs    string
		results string
		wantErr bool
	}{
		{"valid", "datacopy_jobs", "datacopy_job_results", false},
		{"empty jobs table", "", "datacopy_job_results", true},
		{"empty results table", "datacopy_jobs", "", true},
		{"injection attempt", "jobs; DROP TABLE users", "datacopy_job_results", true},
		{"leading digit", "1jobs", "datacopy_job_results", true},
		{"same table", "jobs", "jobs", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{JobsTable: tt.jobs, ResultsTable: tt.results}
			err := validateConfig(&config)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	config := testConfig(t, "bad.sql")
	config.JobsTable = "bad-name"

	if err := GenerateSQLite(&config); err == nil {
		t.Fatal("expected error for invalid table name")
	}
	if _, err := os.Stat(filepath.Join(config.OutputFolder, config.OutputFilename)); !os.IsNotExist(err) {
		t.Error("no file must be written for an invalid configuration")
	}
}
