package record

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// FromImport coerces one loosely structured import item into a normalized,
// validated test case. Unknown fields are ignored. The only hard failure is
// a missing or blank title.
func FromImport(item map[string]any, globalTags []string, now time.Time) (types.TestCase, error) {
	title, _ := item["title"].(string)
	if strings.TrimSpace(title) == "" {
		return types.TestCase{}, &ValidationError{Field: "title", Reason: "is required"}
	}

	tc := types.TestCase{
		ID:             stringField(item, "id"),
		Title:          title,
		Description:    stringField(item, "description"),
		Input:          textField(item["input"]),
		ExpectedOutput: textField(item["expectedOutput"]),
		Status:         types.Status(stringField(item, "status")),
		FailureReason:  stringField(item, "failureReason"),
		Tags:           MergeTags(tagsField(item["tags"]), globalTags),
		Iteration:      stringField(item, "iteration"),
	}
	tc = Normalize(tc)
	if tc.ID == "" {
		tc.ID = NewID()
	}

	nowMillis := types.Millis(now)
	tc.CreatedAt = nowMillis
	if created, ok := timestampField(item["createdAt"]); ok {
		tc.CreatedAt = created
	}
	tc.UpdatedAt = max(nowMillis, tc.CreatedAt)

	if err := Validate(tc); err != nil {
		return types.TestCase{}, err
	}
	return tc, nil
}

func stringField(item map[string]any, key string) string {
	s, _ := item[key].(string)
	return s
}

// textField keeps strings as they are and serializes structured values to
// indented JSON, so the store only ever holds text for input fields.
func textField(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func tagsField(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// timestampField accepts epoch milliseconds as a JSON number or numeric
// string, or an RFC 3339 string.
func timestampField(v any) (int64, bool) {
	var ms int64
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return 0, false
			}
			n = int64(f)
		}
		ms = n
	case float64:
		ms = int64(val)
	case int64:
		ms = val
	case int:
		ms = int64(val)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			ms = n
			break
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		ms = types.Millis(t)
	default:
		return 0, false
	}
	if ms <= 0 {
		return 0, false
	}
	return ms, true
}
