package types

import (
	"context"
	"errors"
)

// Store persists test cases in a single table keyed by ID, with secondary
// indexes on status and iteration. Records handed to a Store are already
// normalized; the store never coerces field values.
type Store interface {
	// GetAll returns every record in storage order. Never nil.
	GetAll(ctx context.Context) ([]TestCase, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (TestCase, error)

	// Put inserts the record or replaces the one with the same ID. The write
	// is durable when Put returns nil.
	Put(ctx context.Context, tc TestCase) error

	// DeleteByID removes the record. Deleting an unknown ID is a no-op.
	DeleteByID(ctx context.Context, id string) error

	// BulkPut upserts every record in one atomic transaction: either all
	// records are written or none are and an error is returned.
	BulkPut(ctx context.Context, tcs []TestCase) error

	// ClearAll removes every record.
	ClearAll(ctx context.Context) error

	// ByStatus returns the records indexed under status.
	ByStatus(ctx context.Context, status Status) ([]TestCase, error)

	// ByIteration returns the records indexed under the iteration label.
	// An empty label is looked up as UnassignedIteration.
	ByIteration(ctx context.Context, iteration string) ([]TestCase, error)

	// Close releases the backend. Close is idempotent.
	Close() error
}

// Store errors.
var (
	ErrNotFound    = errors.New("test case not found")
	ErrInvalidID   = errors.New("invalid test case ID")
	ErrStoreClosed = errors.New("store is closed")
	ErrSchemaNewer = errors.New("store schema is newer than this build")
)

// Record and payload errors.
var (
	ErrInvalidRecord    = errors.New("invalid test case")
	ErrInvalidTitle     = errors.New("title is required")
	ErrMalformedPayload = errors.New("malformed import payload")
)
