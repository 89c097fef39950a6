// Package storetest is the behavioral contract every types.Store backend
// must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// OpenFunc returns a fresh, empty store. Run closes it.
type OpenFunc func(t *testing.T) types.Store

// Run exercises a store from open against the full contract.
func Run(t *testing.T, open OpenFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s types.Store)
	}{
		{"EmptyStore", testEmptyStore},
		{"PutThenGetAll", testPutThenGetAll},
		{"PutReplaces", testPutReplaces},
		{"GetNotFound", testGetNotFound},
		{"EmptyID", testEmptyID},
		{"DeleteByID", testDeleteByID},
		{"DeleteUnknownIsNoop", testDeleteUnknownIsNoop},
		{"ClearAll", testClearAll},
		{"BulkPut", testBulkPut},
		{"BulkPutDuplicateIDs", testBulkPutDuplicateIDs},
		{"BulkPutAtomic", testBulkPutAtomic},
		{"IndexesFollowWrites", testIndexesFollowWrites},
		{"UnassignedIteration", testUnassignedIteration},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

// Record returns a normalized test case with the given id and status.
func Record(id string, status types.Status) types.TestCase {
	return types.TestCase{
		ID:             id,
		Title:          "case " + id,
		Description:    "description of " + id,
		Input:          `{"q": 1}`,
		ExpectedOutput: "ok",
		Status:         status,
		Tags:           []string{"smoke"},
		Iteration:      types.UnassignedIteration,
		CreatedAt:      1700000000000,
		UpdatedAt:      1700000000000,
	}
}

// IDs returns the sorted ids of records.
func IDs(records []types.TestCase) []string {
	out := make([]string, 0, len(records))
	for _, tc := range records {
		out = append(out, tc.ID)
	}
	slices.Sort(out)
	return out
}

func testEmptyStore(t *testing.T, s types.Store) {
	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func testPutThenGetAll(t *testing.T, s types.Store) {
	ctx := context.Background()
	tc := Record("a", types.StatusFailing)
	tc.FailureReason = "timeout"
	tc.Tags = []string{"api", "smoke"}
	tc.Iteration = "Sprint 3"
	require.NoError(t, s.Put(ctx, tc))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, tc, all[0])

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, tc, got)
}

func testPutReplaces(t *testing.T, s types.Store) {
	ctx := context.Background()
	tc := Record("a", types.StatusDraft)
	require.NoError(t, s.Put(ctx, tc))

	tc.Status = types.StatusPassing
	tc.Title = "renamed"
	tc.UpdatedAt++
	require.NoError(t, s.Put(ctx, tc))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, tc, all[0])
}

func testGetNotFound(t *testing.T, s types.Store) {
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testEmptyID(t *testing.T, s types.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.Put(ctx, Record("", types.StatusDraft)), types.ErrInvalidID)
	_, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, types.ErrInvalidID)
	assert.ErrorIs(t, s.DeleteByID(ctx, ""), types.ErrInvalidID)
}

func testDeleteByID(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkPut(ctx, []types.TestCase{
		Record("a", types.StatusDraft),
		Record("b", types.StatusDraft),
	}))
	require.NoError(t, s.DeleteByID(ctx, "a"))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, IDs(all))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testDeleteUnknownIsNoop(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Record("a", types.StatusDraft)))
	require.NoError(t, s.DeleteByID(ctx, "nope"))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, IDs(all))
}

func testClearAll(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.BulkPut(ctx, []types.TestCase{
		Record("a", types.StatusDraft),
		Record("b", types.StatusFailing),
	}))
	require.NoError(t, s.ClearAll(ctx))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	failing, err := s.ByStatus(ctx, types.StatusFailing)
	require.NoError(t, err)
	assert.Empty(t, failing)

	// The store stays usable after a clear.
	require.NoError(t, s.Put(ctx, Record("c", types.StatusDraft)))
	all, err = s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, IDs(all))
}

func testBulkPut(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Record("a", types.StatusDraft)))

	replaced := Record("a", types.StatusPassing)
	require.NoError(t, s.BulkPut(ctx, []types.TestCase{
		replaced,
		Record("b", types.StatusDraft),
		Record("c", types.StatusSkipped),
	}))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, IDs(all))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPassing, got.Status)

	require.NoError(t, s.BulkPut(ctx, nil))
}

func testBulkPutDuplicateIDs(t *testing.T, s types.Store) {
	ctx := context.Background()
	first := Record("a", types.StatusDraft)
	second := Record("a", types.StatusFailing)
	second.Iteration = "Sprint 9"
	require.NoError(t, s.BulkPut(ctx, []types.TestCase{first, second}))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second, all[0], "the last write wins")

	drafts, err := s.ByStatus(ctx, types.StatusDraft)
	require.NoError(t, err)
	assert.Empty(t, drafts)
	unassigned, err := s.ByIteration(ctx, types.UnassignedIteration)
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func testBulkPutAtomic(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Record("keep", types.StatusDraft)))

	err := s.BulkPut(ctx, []types.TestCase{
		Record("x", types.StatusDraft),
		Record("y", types.StatusDraft),
		Record("", types.StatusDraft),
		Record("z", types.StatusDraft),
	})
	require.Error(t, err)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, IDs(all), "a failed batch writes nothing")
}

func testIndexesFollowWrites(t *testing.T, s types.Store) {
	ctx := context.Background()
	a := Record("a", types.StatusDraft)
	a.Iteration = "Sprint 1"
	b := Record("b", types.StatusFailing)
	b.Iteration = "Sprint 1"
	c := Record("c", types.StatusFailing)
	c.Iteration = "Sprint 2"
	require.NoError(t, s.BulkPut(ctx, []types.TestCase{a, b, c}))

	assertIndexes(t, s)

	a.Status = types.StatusFailing
	a.Iteration = "Sprint 2"
	require.NoError(t, s.Put(ctx, a))
	assertIndexes(t, s)

	require.NoError(t, s.DeleteByID(ctx, "b"))
	assertIndexes(t, s)

	require.NoError(t, s.ClearAll(ctx))
	assertIndexes(t, s)
}

// assertIndexes checks that ByStatus and ByIteration return exactly the
// records whose fields carry that value.
func assertIndexes(t *testing.T, s types.Store) {
	t.Helper()
	ctx := context.Background()
	all, err := s.GetAll(ctx)
	require.NoError(t, err)

	for _, status := range types.Statuses {
		var want []types.TestCase
		for _, tc := range all {
			if tc.Status == status {
				want = append(want, tc)
			}
		}
		got, err := s.ByStatus(ctx, status)
		require.NoError(t, err)
		assert.Equal(t, IDs(want), IDs(got), "status %s", status)
	}

	labels := map[string][]types.TestCase{}
	for _, tc := range all {
		label := types.IterationLabel(tc.Iteration)
		labels[label] = append(labels[label], tc)
	}
	for _, label := range []string{"Sprint 1", "Sprint 2", types.UnassignedIteration} {
		if _, ok := labels[label]; !ok {
			labels[label] = nil
		}
	}
	for label, want := range labels {
		got, err := s.ByIteration(ctx, label)
		require.NoError(t, err)
		assert.Equal(t, IDs(want), IDs(got), "iteration %s", label)
	}
}

func testUnassignedIteration(t *testing.T, s types.Store) {
	ctx := context.Background()
	blank := Record("blank", types.StatusDraft)
	blank.Iteration = ""
	named := Record("named", types.StatusDraft)
	require.NoError(t, s.BulkPut(ctx, []types.TestCase{blank, named}))

	got, err := s.ByIteration(ctx, types.UnassignedIteration)
	require.NoError(t, err)
	assert.Equal(t, []string{"blank", "named"}, IDs(got))

	got, err = s.ByIteration(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"blank", "named"}, IDs(got))
}

func testClosed(t *testing.T, s types.Store) {
	ctx := context.Background()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	_, err := s.GetAll(ctx)
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	assert.ErrorIs(t, s.Put(ctx, Record("a", types.StatusDraft)), types.ErrStoreClosed)
	assert.ErrorIs(t, s.ClearAll(ctx), types.ErrStoreClosed)
}
