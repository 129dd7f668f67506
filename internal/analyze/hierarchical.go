package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// readHierarchical reads a JSON record file and flattens it one level:
//   - scalar sub-fields of a nested object become "parent_child" fields
//   - nested lists are serialized to a single JSON string field
//   - the field set is the superset of keys seen across all records
//
// Field order is the sorted flattened key set. JSON objects do not preserve
// member order through decoding, so sorting is what keeps re-analysis of the
// same file deterministic.
//
// Accepted roots: an array of objects, an envelope object whose largest
// array-of-objects member holds the records, or a single object.
func readHierarchical(path string) ([]string, [][]string, []map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}

	var root any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&root); err != nil {
		return nil, nil, nil, fmt.Errorf("decode json: %w", err)
	}

	records, err := recordsFromRoot(root)
	if err != nil {
		return nil, nil, nil, err
	}

	flat := make([]map[string]string, 0, len(records))
	seen := map[string]struct{}{}
	for _, rec := range records {
		fr := map[string]string{}
		for key, v := range rec {
			flattenValue(key, v, fr)
		}
		for key := range fr {
			seen[key] = struct{}{}
		}
		flat = append(flat, fr)
	}

	fields := make([]string, 0, len(seen))
	for key := range seen {
		fields = append(fields, key)
	}
	sort.Strings(fields)

	rows := make([][]string, len(flat))
	for i, fr := range flat {
		row := make([]string, len(fields))
		for j, f := range fields {
			row[j] = fr[f]
		}
		rows[i] = row
	}
	return fields, rows, records, nil
}

func recordsFromRoot(root any) ([]map[string]any, error) {
	switch v := root.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, el := range v {
			if m, ok := el.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil
	case map[string]any:
		// Envelope pattern: the largest array-of-objects member holds the
		// records. "Largest" keeps the choice deterministic across runs.
		var best []map[string]any
		for _, el := range v {
			arr, ok := el.([]any)
			if !ok || len(arr) == 0 {
				continue
			}
			objs := make([]map[string]any, 0, len(arr))
			for _, e := range arr {
				m, ok := e.(map[string]any)
				if !ok {
					objs = nil
					break
				}
				objs = append(objs, m)
			}
			if len(objs) > len(best) {
				best = objs
			}
		}
		if len(best) > 0 {
			return best, nil
		}
		return []map[string]any{v}, nil
	default:
		return nil, fmt.Errorf("unsupported json root %T (want object or array)", root)
	}
}

// flattenValue writes key/value into out, expanding one level of nesting.
func flattenValue(key string, v any, out map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for nk, nv := range t {
			if s, ok := scalarString(nv); ok {
				out[key+"_"+nk] = s
			}
		}
	case []any:
		b, err := json.Marshal(t)
		if err != nil {
			out[key] = ""
			return
		}
		out[key] = string(b)
	default:
		s, _ := scalarString(v)
		out[key] = s
	}
}

// scalarString renders a scalar JSON value; nulls become "".
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
