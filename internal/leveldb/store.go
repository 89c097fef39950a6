// Package leveldb implements the Casebook store on goleveldb.
//
// The database is used as a plain ordered key-value store:
//
//	tc/<id>                      JSON-encoded test case
//	idx/status/<STATUS>\x00<id>    status index entry (empty value)
//	idx/iteration/<label>\x00<id>  iteration index entry (empty value)
//	meta/schema                  schema version
//
// Every mutation is a single leveldb.Batch written with Sync, so the primary
// record and both index entries change together or not at all.
package leveldb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// DirName is the database directory created inside DataDir.
const DirName = "casebook.ldb"

const (
	recordPrefix    = "tc/"
	statusPrefix    = "idx/status/"
	iterationPrefix = "idx/iteration/"
	schemaKey       = "meta/schema"

	// sep ends the indexed value so labels containing "/" cannot collide.
	sep = "\x00"
)

// schemaVersion 1 had no iteration index; 2 adds it.
const schemaVersion = 2

var syncWrite = &opt.WriteOptions{Sync: true}

// Compile-time interface check.
var _ types.Store = (*Store)(nil)

// Store is a types.Store over a leveldb database.
type Store struct {
	mu sync.RWMutex
	db *leveldb.DB
}

// Open opens or creates the on-disk database under dataDir.
func Open(dataDir string) (*Store, error) {
	s, err := storage.OpenFile(filepath.Join(dataDir, DirName), false)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb storage: %w", err)
	}
	return open(s)
}

// OpenMemory returns a store backed by memory only.
func OpenMemory() (*Store, error) {
	return open(storage.NewMemStorage())
}

func open(s storage.Storage) (*Store, error) {
	db, err := leveldb.Open(s, nil)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb: %w", err)
	}
	st := &Store{db: db}
	if err := st.upgrade(); err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

func statusKey(status types.Status, id string) []byte {
	return []byte(statusIndex(status) + id)
}

func iterationKey(iteration, id string) []byte {
	return []byte(iterationIndex(iteration) + id)
}

func statusIndex(status types.Status) string {
	return statusPrefix + string(status) + sep
}

func iterationIndex(iteration string) string {
	return iterationPrefix + types.IterationLabel(iteration) + sep
}

// dbLocked returns the open handle. The caller must hold s.mu.
func (s *Store) dbLocked() (*leveldb.DB, error) {
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	return s.db, nil
}

func decode(id string, val []byte) (types.TestCase, error) {
	var tc types.TestCase
	if err := json.Unmarshal(val, &tc); err != nil {
		return types.TestCase{}, fmt.Errorf("decoding test case %s: %w", id, err)
	}
	if tc.Tags == nil {
		tc.Tags = []string{}
	}
	return tc, nil
}

// GetAll scans the record prefix in key order.
func (s *Store) GetAll(ctx context.Context) ([]types.TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.dbLocked()
	if err != nil {
		return nil, err
	}
	results := []types.TestCase{}
	iter := db.NewIterator(util.BytesPrefix([]byte(recordPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := string(bytes.TrimPrefix(iter.Key(), []byte(recordPrefix)))
		tc, err := decode(id, iter.Value())
		if err != nil {
			return nil, err
		}
		results = append(results, tc)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scanning test cases: %w", err)
	}
	return results, nil
}

// Get looks up one record.
func (s *Store) Get(_ context.Context, id string) (types.TestCase, error) {
	if id == "" {
		return types.TestCase{}, types.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.dbLocked()
	if err != nil {
		return types.TestCase{}, err
	}
	return getLocked(db, id)
}

func getLocked(db *leveldb.DB, id string) (types.TestCase, error) {
	val, err := db.Get(recordKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return types.TestCase{}, types.ErrNotFound
	}
	if err != nil {
		return types.TestCase{}, fmt.Errorf("getting test case %s: %w", id, err)
	}
	return decode(id, val)
}

// ByStatus walks the status index.
func (s *Store) ByStatus(ctx context.Context, status types.Status) ([]types.TestCase, error) {
	return s.byIndex(ctx, statusIndex(status))
}

// ByIteration walks the iteration index. Empty iterations are indexed under
// the Unassigned label.
func (s *Store) ByIteration(ctx context.Context, iteration string) ([]types.TestCase, error) {
	return s.byIndex(ctx, iterationIndex(iteration))
}

func (s *Store) byIndex(ctx context.Context, prefix string) ([]types.TestCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.dbLocked()
	if err != nil {
		return nil, err
	}
	results := []types.TestCase{}
	iter := db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := string(bytes.TrimPrefix(iter.Key(), []byte(prefix)))
		tc, err := getLocked(db, id)
		if err != nil {
			return nil, fmt.Errorf("index entry %q: %w", iter.Key(), err)
		}
		results = append(results, tc)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scanning index %s: %w", prefix, err)
	}
	return results, nil
}

// Put upserts one record and its index entries in one batch.
func (s *Store) Put(ctx context.Context, tc types.TestCase) error {
	return s.BulkPut(ctx, []types.TestCase{tc})
}

// BulkPut writes every record, plus index maintenance, as one synced batch.
func (s *Store) BulkPut(_ context.Context, tcs []types.TestCase) error {
	if len(tcs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.dbLocked()
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	// Records earlier in the same batch shadow what is on disk.
	pending := make(map[string]types.TestCase, len(tcs))
	for _, tc := range tcs {
		if tc.ID == "" {
			return types.ErrInvalidID
		}
		prev, ok := pending[tc.ID]
		if !ok {
			prev, err = getLocked(db, tc.ID)
			ok = err == nil
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}
		if ok {
			batch.Delete(statusKey(prev.Status, prev.ID))
			batch.Delete(iterationKey(prev.Iteration, prev.ID))
		}
		val, err := json.Marshal(tc)
		if err != nil {
			return fmt.Errorf("encoding test case %s: %w", tc.ID, err)
		}
		batch.Put(recordKey(tc.ID), val)
		batch.Put(statusKey(tc.Status, tc.ID), nil)
		batch.Put(iterationKey(tc.Iteration, tc.ID), nil)
		pending[tc.ID] = tc
	}
	if err := db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("writing batch of %d test cases: %w", len(tcs), err)
	}
	return nil
}

// DeleteByID removes the record and its index entries. Unknown IDs are a
// no-op.
func (s *Store) DeleteByID(_ context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.dbLocked()
	if err != nil {
		return err
	}
	prev, err := getLocked(db, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete(recordKey(id))
	batch.Delete(statusKey(prev.Status, id))
	batch.Delete(iterationKey(prev.Iteration, id))
	if err := db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("deleting test case %s: %w", id, err)
	}
	return nil
}

// ClearAll removes every record and index entry, keeping the schema marker.
func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.dbLocked()
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, prefix := range []string{recordPrefix, statusPrefix, iterationPrefix} {
		iter := db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
		for iter.Next() {
			batch.Delete(bytes.Clone(iter.Key()))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return fmt.Errorf("scanning %s: %w", prefix, err)
		}
	}
	if err := db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("clearing test cases: %w", err)
	}
	return nil
}

// Close releases the database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) version() (int, error) {
	val, err := s.db.Get([]byte(schemaKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	v, err := strconv.Atoi(string(val))
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", val, err)
	}
	return v, nil
}

// upgrade brings an older database to schemaVersion in one batch. A version
// 1 database has no iteration index; its records get the Unassigned label
// and the index is built. A fresh database is stamped directly.
func (s *Store) upgrade() error {
	v, err := s.version()
	if err != nil {
		return err
	}
	if v > schemaVersion {
		return fmt.Errorf("%w: leveldb at v%d, build supports v%d", types.ErrSchemaNewer, v, schemaVersion)
	}
	if v == schemaVersion {
		return nil
	}

	batch := new(leveldb.Batch)
	if v == 1 {
		if err := s.backfillIterations(batch); err != nil {
			return err
		}
	}
	batch.Put([]byte(schemaKey), []byte(strconv.Itoa(schemaVersion)))
	if err := s.db.Write(batch, syncWrite); err != nil {
		return fmt.Errorf("upgrading schema to v%d: %w", schemaVersion, err)
	}
	return nil
}

func (s *Store) backfillIterations(batch *leveldb.Batch) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(recordPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		id := string(bytes.TrimPrefix(iter.Key(), []byte(recordPrefix)))
		tc, err := decode(id, iter.Value())
		if err != nil {
			return err
		}
		if tc.Iteration == "" {
			tc.Iteration = types.UnassignedIteration
			val, err := json.Marshal(tc)
			if err != nil {
				return fmt.Errorf("encoding test case %s: %w", id, err)
			}
			batch.Put(recordKey(id), val)
		}
		batch.Put(iterationKey(tc.Iteration, id), nil)
	}
	return iter.Error()
}
