// Package view derives the filtered, sorted and aggregated views shown to
// the user. Every function is a pure recompute over the full record set.
package view

import (
	"cmp"
	"slices"
	"strings"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// All is the sentinel that disables the status or iteration filter.
const All = "ALL"

// Criteria is the user-selected filter. Zero value matches everything.
type Criteria struct {
	Query     string   `json:"query,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Status    string   `json:"status,omitempty"`
	Iteration string   `json:"iteration,omitempty"`
}

// Options controls ordering in Build.
type Options struct {
	FailingFirst bool
}

// Counts aggregates statuses over a record set.
type Counts struct {
	Total   int `json:"total"`
	Passing int `json:"passing"`
	Failing int `json:"failing"`
	Draft   int `json:"draft"`
	Skipped int `json:"skipped"`
}

// Result is everything one render needs.
type Result struct {
	Records    []types.TestCase `json:"records"`
	Counts     Counts           `json:"counts"`
	Tags       []string         `json:"tags"`
	Iterations []string         `json:"iterations"`
}

// Matches reports whether tc passes every active filter.
func Matches(tc types.TestCase, c Criteria) bool {
	if q := strings.ToLower(strings.TrimSpace(c.Query)); q != "" {
		if !strings.Contains(strings.ToLower(tc.Title), q) &&
			!strings.Contains(strings.ToLower(tc.Description), q) {
			return false
		}
	}
	for _, tag := range c.Tags {
		if !tc.HasTag(tag) {
			return false
		}
	}
	if !isAll(c.Status) && !strings.EqualFold(string(tc.Status), c.Status) {
		return false
	}
	if !isAll(c.Iteration) && types.IterationLabel(tc.Iteration) != types.IterationLabel(c.Iteration) {
		return false
	}
	return true
}

func isAll(v string) bool {
	return v == "" || strings.EqualFold(v, All)
}

// Filter returns the records matching c, preserving input order.
func Filter(records []types.TestCase, c Criteria) []types.TestCase {
	out := make([]types.TestCase, 0, len(records))
	for _, tc := range records {
		if Matches(tc, c) {
			out = append(out, tc)
		}
	}
	return out
}

// CountStatuses tallies records by status.
func CountStatuses(records []types.TestCase) Counts {
	var c Counts
	for _, tc := range records {
		c.Total++
		switch tc.Status {
		case types.StatusPassing:
			c.Passing++
		case types.StatusFailing:
			c.Failing++
		case types.StatusSkipped:
			c.Skipped++
		default:
			c.Draft++
		}
	}
	return c
}

// SortByUpdated returns a copy ordered most recently updated first. Ties are
// broken by ID so output is deterministic.
func SortByUpdated(records []types.TestCase) []types.TestCase {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b types.TestCase) int {
		if c := cmp.Compare(b.UpdatedAt, a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// FailingFirst returns a copy with FAILING records moved to the front. The
// relative order inside both partitions is preserved.
func FailingFirst(records []types.TestCase) []types.TestCase {
	out := make([]types.TestCase, 0, len(records))
	for _, tc := range records {
		if tc.Status == types.StatusFailing {
			out = append(out, tc)
		}
	}
	for _, tc := range records {
		if tc.Status != types.StatusFailing {
			out = append(out, tc)
		}
	}
	return out
}

// DistinctTags returns every tag used by any record, sorted.
func DistinctTags(records []types.TestCase) []string {
	seen := make(map[string]struct{})
	for _, tc := range records {
		for _, tag := range tc.Tags {
			seen[tag] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// DistinctIterations returns every iteration label, with empty iterations
// reported as Unassigned, sorted.
func DistinctIterations(records []types.TestCase) []string {
	seen := make(map[string]struct{})
	for _, tc := range records {
		seen[types.IterationLabel(tc.Iteration)] = struct{}{}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Build derives one render: records filtered and sorted newest first
// (optionally failing first), counts over the filtered set, and the facet
// lists over all records.
func Build(records []types.TestCase, c Criteria, opts Options) Result {
	filtered := SortByUpdated(Filter(records, c))
	if opts.FailingFirst {
		filtered = FailingFirst(filtered)
	}
	return Result{
		Records:    filtered,
		Counts:     CountStatuses(filtered),
		Tags:       DistinctTags(records),
		Iterations: DistinctIterations(records),
	}
}
