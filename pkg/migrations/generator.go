package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Adapter names a SQL database flavour.
type Adapter string

const (
	// AdapterPostgres targets PostgreSQL.
	AdapterPostgres Adapter = "postgres"

	// AdapterMySQL targets MySQL and MariaDB.
	AdapterMySQL Adapter = "mysql"

	// AdapterSQLite targets SQLite.
	AdapterSQLite Adapter = "sqlite"
)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.JobsTable, "JobsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.ResultsTable, "ResultsTable"); err != nil {
		return err
	}
	if config.JobsTable == config.ResultsTable {
		return fmt.Errorf("JobsTable and ResultsTable must differ (got: %s)", config.JobsTable)
	}
	return nil
}

// Config configures migration generation for the job tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// JobsTable is the name of the table holding one row per job
	JobsTable string

	// ResultsTable is the name of the table holding one row per submitted record
	ResultsTable string
}

// DefaultConfig returns the default configuration for job table migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_datacopy_jobs.sql", timestamp),
		JobsTable:      "datacopy_jobs",
		ResultsTable:   "datacopy_job_results",
	}
}

// Statements returns the DDL statements for the adapter, in execution order.
// Every statement is idempotent.
func Statements(adapter Adapter, config *Config) ([]string, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	switch adapter {
	case AdapterPostgres:
		return postgresStatements(config), nil
	case AdapterMySQL:
		return mysqlStatements(config), nil
	case AdapterSQLite:
		return sqliteStatements(config), nil
	default:
		return nil, fmt.Errorf("unsupported adapter: %s", adapter)
	}
}

// Generate writes a migration file for the adapter.
func Generate(adapter Adapter, config *Config) error {
	stmts, err := Statements(adapter, config)
	if err != nil {
		return err
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- Datacopy Job Tables Migration\n-- Generated: %s\n-- Database: %s\n", time.Now().Format(time.RFC3339), adapterLabel(adapter))
	for _, stmt := range stmts {
		b.WriteString("\n")
		b.WriteString(stmt)
		b.WriteString(";\n")
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(AdapterPostgres, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(AdapterMySQL, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(AdapterSQLite, config)
}

func adapterLabel(adapter Adapter) string {
	switch adapter {
	case AdapterPostgres:
		return "PostgreSQL"
	case AdapterMySQL:
		return "MySQL/MariaDB"
	default:
		return "SQLite"
	}
}

func postgresStatements(config *Config) []string {
	return []string{
		fmt.Sprintf(`-- Jobs table holds one row per asynchronous write batch
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    object_type TEXT NOT NULL,
    operation TEXT NOT NULL CHECK (operation IN ('insert', 'upsert', 'update', 'delete')),
    external_id_field TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'open' CHECK (state IN ('open', 'in_progress', 'completed', 'failed', 'aborted', 'closed')),
    submitted INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`, config.JobsTable),
		fmt.Sprintf(`-- Index for finding unfinished jobs
CREATE INDEX IF NOT EXISTS idx_%s_state 
    ON %s (state, updated_at)`, config.JobsTable, config.JobsTable),
		fmt.Sprintf(`-- Results table holds one row per submitted record, in submission order
CREATE TABLE IF NOT EXISTS %s (
    job_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
    row_index INTEGER NOT NULL,
    record_id TEXT NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL,
    created BOOLEAN NOT NULL DEFAULT FALSE,
    errors TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (job_id, row_index)
)`, config.ResultsTable, config.JobsTable),
	}
}

func mysqlStatements(config *Config) []string {
	return []string{
		fmt.Sprintf(`-- Jobs table holds one row per asynchronous write batch
CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(64) PRIMARY KEY,
    object_type VARCHAR(255) NOT NULL,
    operation ENUM('insert', 'upsert', 'update', 'delete') NOT NULL,
    external_id_field VARCHAR(255) NOT NULL DEFAULT '',
    state ENUM('open', 'in_progress', 'completed', 'failed', 'aborted', 'closed') NOT NULL DEFAULT 'open',
    submitted INT NOT NULL DEFAULT 0,
    processed INT NOT NULL DEFAULT 0,
    message TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    INDEX idx_%s_state (state, updated_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, config.JobsTable, config.JobsTable),
		fmt.Sprintf(`-- Results table holds one row per submitted record, in submission order
CREATE TABLE IF NOT EXISTS %s (
    job_id VARCHAR(64) NOT NULL,
    row_index INT NOT NULL,
    record_id VARCHAR(64) NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL,
    created BOOLEAN NOT NULL DEFAULT FALSE,
    errors TEXT NOT NULL,
    PRIMARY KEY (job_id, row_index),
    FOREIGN KEY (job_id) REFERENCES %s(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, config.ResultsTable, config.JobsTable),
	}
}

func sqliteStatements(config *Config) []string {
	return []string{
		fmt.Sprintf(`-- Jobs table holds one row per asynchronous write batch
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    object_type TEXT NOT NULL,
    operation TEXT NOT NULL CHECK (operation IN ('insert', 'upsert', 'update', 'delete')),
    external_id_field TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'open' CHECK (state IN ('open', 'in_progress', 'completed', 'failed', 'aborted', 'closed')),
    submitted INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`, config.JobsTable),
		fmt.Sprintf(`-- Index for finding unfinished jobs
CREATE INDEX IF NOT EXISTS idx_%s_state 
    ON %s (state, updated_at)`, config.JobsTable, config.JobsTable),
		fmt.Sprintf(`-- Results table holds one row per submitted record, in submission order
CREATE TABLE IF NOT EXISTS %s (
    job_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
    row_index INTEGER NOT NULL,
    record_id TEXT NOT NULL DEFAULT '',
    success BOOLEAN NOT NULL,
    created BOOLEAN NOT NULL DEFAULT 0,
    errors TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (job_id, row_index)
)`, config.ResultsTable, config.JobsTable),
	}
}
