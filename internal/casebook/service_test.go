package casebook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/casebook/internal/leveldb"
	"github.com/mesh-intelligence/casebook/internal/record"
	"github.com/mesh-intelligence/casebook/internal/storetest"
	"github.com/mesh-intelligence/casebook/internal/view"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupService(t *testing.T) (*Service, *clock) {
	t.Helper()
	s, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	return New(s, WithClock(c.now)), c
}

func countOf(t *testing.T, svc *Service, status string) int {
	t.Helper()
	res, err := svc.View(context.Background(), view.Criteria{Status: status}, view.Options{})
	require.NoError(t, err)
	return len(res.Records)
}

func TestSaveCreates(t *testing.T) {
	ctx := context.Background()
	svc, c := setupService(t)

	saved, err := svc.Save(ctx, types.TestCase{
		Title:  "  Checkout discount ",
		Status: "bogus",
		Tags:   []string{"b", "a", "b"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Checkout discount", saved.Title)
	assert.Equal(t, types.StatusDraft, saved.Status)
	assert.Equal(t, []string{"a", "b"}, saved.Tags)
	assert.Equal(t, types.UnassignedIteration, saved.Iteration)
	assert.Equal(t, types.Millis(c.now()), saved.CreatedAt)
	assert.Equal(t, saved.CreatedAt, saved.UpdatedAt)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, saved, all[0])
}

func TestSaveRejectsBlankTitle(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Save(ctx, types.TestCase{Title: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidTitle)
	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSaveEditKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, c := setupService(t)

	created, err := svc.Save(ctx, types.TestCase{Title: "Checkout discount", Status: types.StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, 1, countOf(t, svc, "DRAFT"))
	assert.Equal(t, 0, countOf(t, svc, "PASSING"))

	c.advance(time.Minute)
	edit := created
	edit.Status = types.StatusPassing
	edit.CreatedAt = 42
	edited, err := svc.Save(ctx, edit)
	require.NoError(t, err)

	assert.Equal(t, created.CreatedAt, edited.CreatedAt)
	assert.Greater(t, edited.UpdatedAt, created.UpdatedAt)
	assert.Equal(t, 0, countOf(t, svc, "DRAFT"))
	assert.Equal(t, 1, countOf(t, svc, "PASSING"))

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "an edit replaces the record")
}

func TestSaveEditAdvancesUpdatedAtWithinSameMillisecond(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	first, err := svc.Save(ctx, types.TestCase{Title: "fast"})
	require.NoError(t, err)
	second, err := svc.Save(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt+1, second.UpdatedAt)
}

func TestSaveWithUnknownIDKeepsSuppliedCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, c := setupService(t)

	saved, err := svc.Save(ctx, types.TestCase{ID: "fixed", Title: "t", CreatedAt: 1000})
	require.NoError(t, err)
	assert.Equal(t, "fixed", saved.ID)
	assert.Equal(t, int64(1000), saved.CreatedAt)
	assert.Equal(t, types.Millis(c.now()), saved.UpdatedAt)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	a, err := svc.Save(ctx, types.TestCase{Title: "a"})
	require.NoError(t, err)
	b, err := svc.Save(ctx, types.TestCase{Title: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID))
	require.NoError(t, svc.Delete(ctx, "does-not-exist"))

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, storetest.IDs(all))

	_, err = svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	_, err := svc.ImportBatch(ctx, []byte(`[{"title":"a"},{"title":"b"}]`), nil)
	require.NoError(t, err)

	require.NoError(t, svc.ClearAll(ctx))
	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImportBatchAbortsOnInvalidItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	_, err := svc.Save(ctx, types.TestCase{Title: "existing"})
	require.NoError(t, err)
	before, err := svc.ListAll(ctx)
	require.NoError(t, err)

	payload := `[
		{"title": "one"},
		{"title": "two"},
		{"description": "no title here"},
		{"title": "four"},
		{"title": "five"}
	]`
	_, err = svc.ImportBatch(ctx, []byte(payload), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 3: title is required")
	assert.ErrorIs(t, err, types.ErrInvalidTitle)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 1, merr.Len())

	after, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImportBatchReportsEveryFailingItem(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.ImportBatch(context.Background(), []byte(`[{"title":""},{"title":"ok"},{}]`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1:")
	assert.Contains(t, err.Error(), "item 3:")
	assert.NotContains(t, err.Error(), "item 2:")
}

func TestImportBatchMalformed(t *testing.T) {
	tests := []string{``, `not json`, `42`, `[1, 2]`, `{"title": "x"`}
	for _, payload := range tests {
		t.Run(fmt.Sprintf("%q", payload), func(t *testing.T) {
			svc, _ := setupService(t)
			_, err := svc.ImportBatch(context.Background(), []byte(payload), nil)
			assert.ErrorIs(t, err, types.ErrMalformedPayload)
		})
	}
}

func TestImportBatchDeduplicatesTags(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	res, err := svc.ImportBatch(ctx, []byte(`{"title":"X","tags":["a","a","b"]}`), []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.IDs, 1)

	got, err := svc.Get(ctx, res.IDs[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, got.Tags)
}

func TestImportBatchCountsAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, c := setupService(t)

	original, err := svc.Save(ctx, types.TestCase{ID: "keep", Title: "original"})
	require.NoError(t, err)
	c.advance(time.Hour)

	payload := `[
		{"id": "keep", "title": "replaced", "createdAt": 5},
		{"id": "new", "title": "fresh"},
		{"id": "new", "title": "fresher"}
	]`
	res, err := svc.ImportBatch(ctx, []byte(payload), nil)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 1, Replaced: 1, IDs: []string{"keep", "new"}}, res)

	kept, err := svc.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "replaced", kept.Title)
	assert.Equal(t, original.CreatedAt, kept.CreatedAt)
	assert.Equal(t, types.Millis(c.now()), kept.UpdatedAt)

	fresh, err := svc.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "fresher", fresh.Title)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, c := setupService(t)

	payload := `[
		{"id": "1", "title": "Login", "status": "PASSING", "tags": ["auth"], "iteration": "Sprint 1", "createdAt": 1000},
		{"id": "2", "title": "Refund", "status": "FAILING", "failureReason": "500", "input": {"amount": 10}, "createdAt": 2000},
		{"id": "3", "title": "Export", "expectedOutput": "csv", "createdAt": 3000}
	]`
	_, err := svc.ImportBatch(ctx, []byte(payload), nil)
	require.NoError(t, err)
	before, err := svc.ListAll(ctx)
	require.NoError(t, err)

	exported, err := svc.Export(ctx)
	require.NoError(t, err)

	fresh, c2 := setupService(t)
	c2.t = c.t.Add(time.Hour)
	_, err = fresh.ImportBatch(ctx, exported, nil)
	require.NoError(t, err)
	after, err := fresh.ListAll(ctx)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	byID := map[string]types.TestCase{}
	for _, tc := range after {
		byID[tc.ID] = tc
	}
	for _, want := range before {
		got, ok := byID[want.ID]
		require.True(t, ok, want.ID)
		assert.GreaterOrEqual(t, got.UpdatedAt, want.UpdatedAt)
		got.UpdatedAt = want.UpdatedAt
		assert.Equal(t, want, got)
	}
}

func TestExportOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	_, err := svc.ImportBatch(ctx, []byte(`[
		{"id": "b", "title": "b", "createdAt": 20},
		{"id": "c", "title": "c", "createdAt": 10},
		{"id": "a", "title": "a", "createdAt": 20}
	]`), nil)
	require.NoError(t, err)

	out, err := svc.ExportAs(ctx, "jsonl")
	require.NoError(t, err)
	res, err := svc.ImportBatch(ctx, out, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, res.IDs)

	_, err = svc.ExportAs(ctx, "xml")
	assert.Error(t, err)
}

func TestImportTyped(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	res, err := svc.Import(ctx, []types.TestCase{
		{Title: "one", Tags: []string{"x"}},
		{ID: "two", Title: "two", Status: "passing"},
	}, []string{"regression"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	two, err := svc.Get(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPassing, two.Status)
	assert.Equal(t, []string{"regression"}, two.Tags)

	_, err = svc.Import(ctx, []types.TestCase{{Title: "ok"}, {Title: ""}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 2: title is required")
}

func TestViewAndFacets(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)
	_, err := svc.ImportBatch(ctx, []byte(`[
		{"title": "d", "status": "DRAFT", "tags": ["a"]},
		{"title": "p", "status": "PASSING", "tags": ["b"], "iteration": "Sprint 1"},
		{"title": "f", "status": "FAILING", "tags": ["a", "b"]},
		{"title": "s", "status": "SKIPPED", "tags": []}
	]`), nil)
	require.NoError(t, err)

	res, err := svc.View(ctx, view.Criteria{Status: "FAILING"}, view.Options{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "f", res.Records[0].Title)

	res, err = svc.View(ctx, view.Criteria{Tags: []string{"a", "b"}}, view.Options{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "f", res.Records[0].Title)

	res, err = svc.View(ctx, view.Criteria{Iteration: types.UnassignedIteration}, view.Options{})
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, view.Counts{Total: 3, Failing: 1, Draft: 1, Skipped: 1}, res.Counts)

	facets, err := svc.Facets(ctx)
	require.NoError(t, err)
	assert.Equal(t, Facets{
		Tags:       []string{"a", "b"},
		Iterations: []string{"Sprint 1", types.UnassignedIteration},
	}, facets)
}

// failingStore rejects every write.
type failingStore struct {
	types.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) Put(context.Context, types.TestCase) error       { return errDiskFull }
func (failingStore) BulkPut(context.Context, []types.TestCase) error { return errDiskFull }

func TestPersistenceFailuresSurface(t *testing.T) {
	ctx := context.Background()
	mem, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	svc := New(failingStore{mem})

	_, err = svc.Save(ctx, types.TestCase{Title: "x"})
	assert.ErrorIs(t, err, errDiskFull)
	_, err = svc.ImportBatch(ctx, []byte(`{"title":"x"}`), nil)
	assert.ErrorIs(t, err, errDiskFull)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
