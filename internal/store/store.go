// Package store opens the types.Store named by a Config.
package store

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/casebook/internal/leveldb"
	"github.com/mesh-intelligence/casebook/internal/sqlite"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// Open selects a backend by cfg.Backend:
//
//	sqlite  (default) DataDir/casebook.db
//	leveldb           DataDir/casebook.ldb
//	memory            nothing on disk
func Open(ctx context.Context, cfg types.Config) (types.Store, error) {
	if cfg.Backend == "" {
		cfg.Backend = types.BackendSQLite
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.Backend)
	}

	var (
		s   types.Store
		err error
	)
	switch cfg.Backend {
	case types.BackendSQLite:
		s, err = sqlite.Open(ctx, cfg)
	case types.BackendLevelDB:
		s, err = leveldb.Open(cfg.DataDir)
	default:
		s, err = leveldb.OpenMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	return s, nil
}
