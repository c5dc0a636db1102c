// Package migrations generates the SQL that creates the job tables used by SQL-backed
// instances. Jobs record asynchronous write batches and their per-row results, so a
// transfer can submit a chunk, poll its state and read the outcome of every row.
//
// PostgreSQL, MySQL/MariaDB and SQLite are supported. Statements can be written to a
// migration file for review, or obtained with Statements and executed directly.
package migrations
