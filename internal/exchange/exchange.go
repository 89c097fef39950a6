// Package exchange reads and writes the import/export wire format: a JSON
// array of test case objects, or one object per line for JSONL dumps.
package exchange

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mesh-intelligence/casebook/pkg/types"
)

// Format names accepted by Encode.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// Decode parses an import payload into raw items. It accepts a single
// object, an array of objects, or JSONL (one object per line). Numbers are
// kept as json.Number so epoch milliseconds survive intact.
func Decode(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", types.ErrMalformedPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var first any
	if err := dec.Decode(&first); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedPayload, err)
	}
	if dec.More() {
		return decodeLines(trimmed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", types.ErrMalformedPayload)
	}

	switch v := first.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		items := make([]map[string]any, 0, len(v))
		for i, el := range v {
			obj, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: item %d is not an object", types.ErrMalformedPayload, i+1)
			}
			items = append(items, obj)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: expected an object or an array of objects", types.ErrMalformedPayload)
	}
}

// decodeLines parses JSONL. Blank lines are skipped; any other line that is
// not a JSON object rejects the whole payload.
func decodeLines(data []byte) ([]map[string]any, error) {
	var items []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil || obj == nil || dec.More() {
			return nil, fmt.Errorf("%w: line %d is not a JSON object", types.ErrMalformedPayload, line)
		}
		items = append(items, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedPayload, err)
	}
	return items, nil
}

// EncodeJSON renders records as a 2-space indented JSON array.
func EncodeJSON(records []types.TestCase) ([]byte, error) {
	if records == nil {
		records = []types.TestCase{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding test cases: %w", err)
	}
	return append(b, '\n'), nil
}

// EncodeJSONL renders one compact JSON object per line.
func EncodeJSONL(records []types.TestCase) ([]byte, error) {
	var buf bytes.Buffer
	for _, tc := range records {
		b, err := json.Marshal(tc)
		if err != nil {
			return nil, fmt.Errorf("encoding test case %s: %w", tc.ID, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Encode dispatches on format name.
func Encode(format string, records []types.TestCase) ([]byte, error) {
	switch format {
	case "", FormatJSON:
		return EncodeJSON(records)
	case FormatJSONL:
		return EncodeJSONL(records)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}
