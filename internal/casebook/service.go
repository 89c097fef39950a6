// Package casebook is the single entry point the CLI and HTTP API use to
// read and mutate test cases. Every write goes through record normalization
// and validation before it reaches the store.
package casebook

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/casebook/internal/exchange"
	"github.com/mesh-intelligence/casebook/internal/record"
	"github.com/mesh-intelligence/casebook/internal/view"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// Service wraps a Store with the form and import/export workflows.
type Service struct {
	store types.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Service over store. The Service does not own the store;
// callers close it.
func New(store types.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   zap.NewNop().Sugar(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "casebook")
	return s
}

// ImportResult reports what an import wrote.
type ImportResult struct {
	Created  int      `json:"created"`
	Replaced int      `json:"replaced"`
	IDs      []string `json:"ids"`
}

// Facets are the distinct filter choices across every record.
type Facets struct {
	Tags       []string `json:"tags"`
	Iterations []string `json:"iterations"`
}

// ListAll returns every stored record in storage order.
func (s *Service) ListAll(ctx context.Context) ([]types.TestCase, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		s.log.Errorw("list test cases failed", "error", err)
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	s.log.Debugw("listed test cases", "count", len(all))
	return all, nil
}

// Get returns one record for the edit workflow.
func (s *Service) Get(ctx context.Context, id string) (types.TestCase, error) {
	tc, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			s.log.Errorw("get test case failed", "id", id, "error", err)
		}
		return types.TestCase{}, fmt.Errorf("get test case %s: %w", id, err)
	}
	return tc, nil
}

// Save persists a form submission. A draft without an ID is created; a draft
// with an ID replaces the stored record while keeping its createdAt. The
// returned record is exactly what was written.
func (s *Service) Save(ctx context.Context, draft types.TestCase) (types.TestCase, error) {
	tc := record.Normalize(draft)
	now := types.Millis(s.now())

	if tc.ID == "" {
		tc.ID = record.NewID()
		tc.CreatedAt, tc.UpdatedAt = now, now
	} else {
		prev, err := s.store.Get(ctx, tc.ID)
		switch {
		case err == nil:
			tc.CreatedAt = prev.CreatedAt
			// An edit always moves updatedAt forward, even within one millisecond.
			tc.UpdatedAt = max(now, tc.CreatedAt, prev.UpdatedAt+1)
		case errors.Is(err, types.ErrNotFound):
			if tc.CreatedAt <= 0 {
				tc.CreatedAt = now
			}
			tc.UpdatedAt = max(now, tc.CreatedAt)
		default:
			s.log.Errorw("load test case for save failed", "id", tc.ID, "error", err)
			return types.TestCase{}, fmt.Errorf("load test case %s: %w", tc.ID, err)
		}
	}

	if err := record.Validate(tc); err != nil {
		s.log.Debugw("rejected test case", "id", tc.ID, "error", err)
		return types.TestCase{}, err
	}
	if err := s.store.Put(ctx, tc); err != nil {
		s.log.Errorw("put test case failed", "id", tc.ID, "error", err)
		return types.TestCase{}, fmt.Errorf("put test case %s: %w", tc.ID, err)
	}
	s.log.Debugw("saved test case", "id", tc.ID, "status", tc.Status)
	return tc, nil
}

// Delete removes a record. Unknown ids are not an error.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		s.log.Errorw("delete test case failed", "id", id, "error", err)
		return fmt.Errorf("delete test case %s: %w", id, err)
	}
	s.log.Debugw("deleted test case", "id", id)
	return nil
}

// ClearAll removes every record.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		s.log.Errorw("clear test cases failed", "error", err)
		return fmt.Errorf("clear test cases: %w", err)
	}
	s.log.Infow("cleared all test cases")
	return nil
}

// ImportBatch decodes a JSON payload (one object, an array, or JSONL),
// coerces every item and writes them in one atomic BulkPut. If any item is
// invalid nothing is written and the error lists every failing item.
func (s *Service) ImportBatch(ctx context.Context, data []byte, globalTags []string) (ImportResult, error) {
	items, err := exchange.Decode(data)
	if err != nil {
		s.log.Debugw("rejected import payload", "error", err)
		return ImportResult{}, err
	}

	now := s.now()
	tcs := make([]types.TestCase, 0, len(items))
	var errs *multierror.Error
	for i, item := range items {
		tc, err := record.FromImport(item, globalTags, now)
		if err != nil {
			errs = multierror.Append(errs, itemError(i+1, err))
			continue
		}
		tcs = append(tcs, tc)
	}
	if err := errs.ErrorOrNil(); err != nil {
		s.log.Debugw("rejected import", "items", len(items), "failures", errs.Len())
		return ImportResult{}, err
	}
	return s.commit(ctx, tcs)
}

// Import is ImportBatch for callers that already hold typed records.
func (s *Service) Import(ctx context.Context, drafts []types.TestCase, globalTags []string) (ImportResult, error) {
	now := types.Millis(s.now())
	tcs := make([]types.TestCase, 0, len(drafts))
	var errs *multierror.Error
	for i, draft := range drafts {
		draft.Tags = record.MergeTags(draft.Tags, globalTags)
		tc := record.Normalize(draft)
		if tc.ID == "" {
			tc.ID = record.NewID()
		}
		if tc.CreatedAt <= 0 {
			tc.CreatedAt = now
		}
		tc.UpdatedAt = max(now, tc.CreatedAt)
		if err := record.Validate(tc); err != nil {
			errs = multierror.Append(errs, itemError(i+1, err))
			continue
		}
		tcs = append(tcs, tc)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return ImportResult{}, err
	}
	return s.commit(ctx, tcs)
}

func itemError(item int, err error) error {
	var verr *record.ValidationError
	if errors.As(err, &verr) {
		verr.Item = item
		return verr
	}
	return fmt.Errorf("item %d: %w", item, err)
}

// commit writes validated records, keeping the createdAt of records that
// already exist.
func (s *Service) commit(ctx context.Context, tcs []types.TestCase) (ImportResult, error) {
	existing, err := s.store.GetAll(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("load existing test cases: %w", err)
	}
	byID := make(map[string]types.TestCase, len(existing))
	for _, tc := range existing {
		byID[tc.ID] = tc
	}

	res := ImportResult{IDs: make([]string, 0, len(tcs))}
	seen := make(map[string]bool, len(tcs))
	for i, tc := range tcs {
		if prev, ok := byID[tc.ID]; ok {
			tc.CreatedAt = prev.CreatedAt
			tc.UpdatedAt = max(tc.UpdatedAt, tc.CreatedAt)
			tcs[i] = tc
			if !seen[tc.ID] {
				res.Replaced++
			}
		} else if !seen[tc.ID] {
			res.Created++
		}
		if !seen[tc.ID] {
			res.IDs = append(res.IDs, tc.ID)
		}
		seen[tc.ID] = true
	}

	if err := s.store.BulkPut(ctx, tcs); err != nil {
		s.log.Errorw("import failed", "records", len(tcs), "error", err)
		return ImportResult{}, fmt.Errorf("import %d test cases: %w", len(tcs), err)
	}
	s.log.Infow("imported test cases", "created", res.Created, "replaced", res.Replaced)
	return res, nil
}

// Export renders the full record set as indented JSON, ordered by creation
// time so repeated exports diff cleanly.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	return s.ExportAs(ctx, exchange.FormatJSON)
}

// ExportAs renders the full record set in the named format.
func (s *Service) ExportAs(ctx context.Context, format string) ([]byte, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, b types.TestCase) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return exchange.Encode(format, all)
}

// View loads every record and derives the filtered, sorted view.
func (s *Service) View(ctx context.Context, c view.Criteria, opts view.Options) (view.Result, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return view.Result{}, err
	}
	return view.Build(all, c, opts), nil
}

// Facets returns the distinct tags and iteration labels.
func (s *Service) Facets(ctx context.Context) (Facets, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return Facets{}, err
	}
	return Facets{Tags: view.DistinctTags(all), Iterations: view.DistinctIterations(all)}, nil
}
