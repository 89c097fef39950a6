// Package sqlite implements the SQLite storage backend for Casebook.
// This file holds the schema and its ordered migrations.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// Schema DDL for version 1: the test case table and its status index.
const (
	createTestCases = `CREATE TABLE IF NOT EXISTS test_cases (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    input TEXT NOT NULL DEFAULT '',
    expected_output TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    failure_reason TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);`

	idxTestCasesStatus = `CREATE INDEX IF NOT EXISTS idx_test_cases_status ON test_cases(status);`
)

// Schema DDL for version 2: the iteration column and index. Existing rows
// take the Unassigned label, so upgrading never drops or rejects records.
const (
	addIteration          = `ALTER TABLE test_cases ADD COLUMN iteration TEXT NOT NULL DEFAULT 'Unassigned';`
	backfillIteration     = `UPDATE test_cases SET iteration = 'Unassigned' WHERE trim(iteration) = '';`
	idxTestCasesIteration = `CREATE INDEX IF NOT EXISTS idx_test_cases_iteration ON test_cases(iteration);`
)

// migrations lists the statements for each schema version in order. The
// index into the slice plus one is the version the statements produce.
var migrations = [][]string{
	{createTestCases, idxTestCasesStatus},
	{addIteration, backfillIteration, idxTestCasesIteration},
}

// schemaVersion is the version this build writes.
var schemaVersion = len(migrations)

// migrate brings the database up to schemaVersion, one transaction per
// version. PRAGMA user_version records progress.
func migrate(ctx context.Context, db *sql.DB, target int) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("%w: file at v%d, build supports v%d", types.ErrSchemaNewer, current, len(migrations))
	}

	for v := current; v < target; v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration v%d: %w", version, err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration v%d: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("recording schema v%d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration v%d: %w", version, err)
	}
	return nil
}
