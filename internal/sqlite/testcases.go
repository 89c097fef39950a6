package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

const selectColumns = `SELECT id, title, description, input, expected_output, status,
	failure_reason, tags, iteration, created_at, updated_at FROM test_cases`

const upsertTestCase = `INSERT INTO test_cases (
	id, title, description, input, expected_output, status,
	failure_reason, tags, iteration, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	description = excluded.description,
	input = excluded.input,
	expected_output = excluded.expected_output,
	status = excluded.status,
	failure_reason = excluded.failure_reason,
	tags = excluded.tags,
	iteration = excluded.iteration,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func hydrate(row scanner) (types.TestCase, error) {
	var tc types.TestCase
	var status, tags string
	err := row.Scan(&tc.ID, &tc.Title, &tc.Description, &tc.Input, &tc.ExpectedOutput,
		&status, &tc.FailureReason, &tags, &tc.Iteration, &tc.CreatedAt, &tc.UpdatedAt)
	if err != nil {
		return types.TestCase{}, err
	}
	tc.Status = types.Status(status)
	if err := json.Unmarshal([]byte(tags), &tc.Tags); err != nil {
		return types.TestCase{}, fmt.Errorf("parsing tags of %s: %w", tc.ID, err)
	}
	if tc.Tags == nil {
		tc.Tags = []string{}
	}
	return tc, nil
}

// dbLocked returns the open handle. The caller must hold b.mu.
func (b *Backend) dbLocked() (*sql.DB, error) {
	if !b.attached {
		return nil, types.ErrStoreClosed
	}
	return b.db, nil
}

func (b *Backend) query(ctx context.Context, where string, args ...any) ([]types.TestCase, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	db, err := b.dbLocked()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectColumns+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying test cases: %w", err)
	}
	defer rows.Close()

	results := []types.TestCase{}
	for rows.Next() {
		tc, err := hydrate(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating test case: %w", err)
		}
		results = append(results, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating test cases: %w", err)
	}
	return results, nil
}

// GetAll returns every row in rowid order.
func (b *Backend) GetAll(ctx context.Context) ([]types.TestCase, error) {
	return b.query(ctx, "")
}

// Get returns one test case or ErrNotFound.
func (b *Backend) Get(ctx context.Context, id string) (types.TestCase, error) {
	if id == "" {
		return types.TestCase{}, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	db, err := b.dbLocked()
	if err != nil {
		return types.TestCase{}, err
	}
	tc, err := hydrate(db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.TestCase{}, types.ErrNotFound
	}
	if err != nil {
		return types.TestCase{}, fmt.Errorf("getting test case %s: %w", id, err)
	}
	return tc, nil
}

// ByStatus reads through idx_test_cases_status.
func (b *Backend) ByStatus(ctx context.Context, status types.Status) ([]types.TestCase, error) {
	return b.query(ctx, " INDEXED BY idx_test_cases_status WHERE status = ?", string(status))
}

// ByIteration reads through idx_test_cases_iteration. Rows stored with an
// empty iteration belong to the Unassigned group.
func (b *Backend) ByIteration(ctx context.Context, iteration string) ([]types.TestCase, error) {
	label := types.IterationLabel(iteration)
	if label == types.UnassignedIteration {
		return b.query(ctx, " INDEXED BY idx_test_cases_iteration WHERE iteration IN (?, '')", label)
	}
	return b.query(ctx, " INDEXED BY idx_test_cases_iteration WHERE iteration = ?", label)
}

// Put upserts one test case in its own transaction.
func (b *Backend) Put(ctx context.Context, tc types.TestCase) error {
	return b.write(ctx, func(tx *sql.Tx) error {
		return upsert(ctx, tx, tc)
	})
}

// BulkPut upserts every test case in a single transaction. Any failure
// rolls the whole batch back.
func (b *Backend) BulkPut(ctx context.Context, tcs []types.TestCase) error {
	if len(tcs) == 0 {
		return nil
	}
	return b.write(ctx, func(tx *sql.Tx) error {
		for _, tc := range tcs {
			if err := upsert(ctx, tx, tc); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByID removes a row. Unknown IDs are ignored.
func (b *Backend) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	return b.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM test_cases WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting test case %s: %w", id, err)
		}
		return nil
	})
}

// ClearAll deletes every row.
func (b *Backend) ClearAll(ctx context.Context) error {
	return b.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM test_cases"); err != nil {
			return fmt.Errorf("clearing test cases: %w", err)
		}
		return nil
	})
}

func (b *Backend) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	db, err := b.dbLocked()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, tc types.TestCase) error {
	if tc.ID == "" {
		return types.ErrInvalidID
	}
	tags := tc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshaling tags of %s: %w", tc.ID, err)
	}
	_, err = tx.ExecContext(ctx, upsertTestCase,
		tc.ID, tc.Title, tc.Description, tc.Input, tc.ExpectedOutput, string(tc.Status),
		tc.FailureReason, string(tagsJSON), tc.Iteration, tc.CreatedAt, tc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting test case %s: %w", tc.ID, err)
	}
	return nil
}
