package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// DBFileName is the database file created inside DataDir.
const DBFileName = "casebook.db"

// Compile-time interface check.
var _ types.Store = (*Backend)(nil)

// Backend implements types.Store on a single SQLite table. SQLite keeps the
// status and iteration indexes in step with the table inside every
// transaction.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	path     string
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Open creates a backend and attaches it in one step.
func Open(ctx context.Context, config types.Config) (*Backend, error) {
	b := NewBackend()
	if err := b.Attach(ctx, config); err != nil {
		return nil, err
	}
	return b, nil
}

// Attach opens (or creates) DataDir/casebook.db and migrates it to the
// current schema. Attaching an attached backend is a no-op.
func (b *Backend) Attach(ctx context.Context, config types.Config) error {
	return b.attach(ctx, config, schemaVersion)
}

func (b *Backend) attach(ctx context.Context, config types.Config, target int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY between
	// concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := migrate(ctx, db, target); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.path = path
	b.attached = true
	return nil
}

// Detach closes the database. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	if err != nil {
		return fmt.Errorf("closing %s: %w", b.path, err)
	}
	return nil
}

// Close implements types.Store.
func (b *Backend) Close() error {
	return b.Detach()
}

// Path returns the database file path, empty when detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}
