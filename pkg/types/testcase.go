package types

import (
	"slices"
	"strings"
	"time"
)

// Status is the human-asserted outcome of a test case.
type Status string

// Test case statuses.
const (
	StatusDraft   Status = "DRAFT"
	StatusPassing Status = "PASSING"
	StatusFailing Status = "FAILING"
	StatusSkipped Status = "SKIPPED"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusDraft, StatusPassing, StatusFailing, StatusSkipped}

// UnassignedIteration is the label for test cases without an iteration.
const UnassignedIteration = "Unassigned"

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPassing, StatusFailing, StatusSkipped:
		return true
	}
	return false
}

// ParseStatus matches v case-insensitively against the known statuses.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// TestCase is one tracked test scenario with an asserted status.
// Timestamps are epoch milliseconds, matching the import/export wire format.
type TestCase struct {
	ID             string   `json:"id"`
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Input          string   `json:"input"`
	ExpectedOutput string   `json:"expectedOutput"`
	Status         Status   `json:"status" validate:"oneof=DRAFT PASSING FAILING SKIPPED"`
	FailureReason  string   `json:"failureReason"`
	Tags           []string `json:"tags"`
	Iteration      string   `json:"iteration"`
	CreatedAt      int64    `json:"createdAt"`
	UpdatedAt      int64    `json:"updatedAt" validate:"gtefield=CreatedAt"`
}

// Clone returns a deep copy of the test case.
func (tc TestCase) Clone() TestCase {
	out := tc
	if tc.Tags != nil {
		out.Tags = slices.Clone(tc.Tags)
	}
	return out
}

// HasTag reports whether tag is in the tag set.
func (tc TestCase) HasTag(tag string) bool {
	return slices.Contains(tc.Tags, tag)
}

// Created returns CreatedAt as a time.
func (tc TestCase) Created() time.Time {
	return time.UnixMilli(tc.CreatedAt)
}

// Updated returns UpdatedAt as a time.
func (tc TestCase) Updated() time.Time {
	return time.UnixMilli(tc.UpdatedAt)
}

// IterationLabel maps an empty iteration to UnassignedIteration so that both
// spellings land in the same group.
func IterationLabel(iteration string) string {
	if strings.TrimSpace(iteration) == "" {
		return UnassignedIteration
	}
	return iteration
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
