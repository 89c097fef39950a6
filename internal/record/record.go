// Package record normalizes and validates test cases at the system boundary.
// Form submissions and imports pass through here before they reach a Store;
// the stores themselves never coerce field values.
package record

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

var recordValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}()

// ValidationError names the field (and, for imports, the 1-based item) that
// blocked a record from being persisted.
type ValidationError struct {
	Item   int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("item %d: %s %s", e.Item, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets callers match ErrInvalidRecord, and ErrInvalidTitle for title
// failures.
func (e *ValidationError) Unwrap() []error {
	if e.Field == "title" {
		return []error{types.ErrInvalidRecord, types.ErrInvalidTitle}
	}
	return []error{types.ErrInvalidRecord}
}

// NewID returns a UUID v7 string, falling back to v4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Normalize applies the lenient defaults: trimmed title, unknown status to
// DRAFT, duplicate-free sorted tags, and the Unassigned iteration label.
func Normalize(tc types.TestCase) types.TestCase {
	out := tc.Clone()
	out.ID = strings.TrimSpace(out.ID)
	out.Title = strings.TrimSpace(out.Title)
	if s, ok := types.ParseStatus(string(out.Status)); ok {
		out.Status = s
	} else {
		out.Status = types.StatusDraft
	}
	out.Tags = MergeTags(out.Tags)
	out.Iteration = types.IterationLabel(strings.TrimSpace(out.Iteration))
	return out
}

// Validate checks a normalized record. The returned error is a
// *ValidationError naming the first offending field.
func Validate(tc types.TestCase) error {
	if strings.TrimSpace(tc.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	err := recordValidator.Struct(tc)
	if err == nil {
		if strings.TrimSpace(tc.ID) == "" {
			return &ValidationError{Field: "id", Reason: "is required"}
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate test case: %w", err)
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "gtefield":
		return "must not be earlier than createdAt"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// MergeTags unions the tag sets, trimming whitespace and dropping blanks.
// The result is sorted and never nil.
func MergeTags(sets ...[]string) []string {
	out := []string{}
	for _, set := range sets {
		for _, tag := range set {
			tag = strings.TrimSpace(tag)
			if tag == "" || slices.Contains(out, tag) {
				continue
			}
			out = append(out, tag)
		}
	}
	slices.Sort(out)
	return out
}
