// Package analyze implements source-file profiling for import planning.
//
// The analyze package is responsible for:
//   - Reading a tabular (CSV) or hierarchical (JSON) record file in full
//   - Inferring a primitive type per field (date, integer, float, boolean, text)
//   - Computing per-field statistics (distinct counts, numeric and length stats)
//   - Flagging fields that are worth indexing downstream
//
// Design constraints:
//   - Type decisions use a full-column scan, never a sample, so that analyzing
//     the same file twice yields the same profiles.
//   - All values are carried as strings ("" meaning null); coercion to backend
//     types happens at load time against the planned schema.
//   - An unreadable or empty file is a fatal AnalysisError; callers must not
//     proceed to planning.
package analyze

import (
	"fmt"
)

// Format declares how the input file is structured.
type Format string

const (
	// FormatTabular is a delimited file whose first record names the fields.
	FormatTabular Format = "tabular"
	// FormatHierarchical is a JSON file of records, flattened one level.
	FormatHierarchical Format = "hierarchical"
)

// AnalysisError reports a source file that could not be profiled.
// It always aborts the import before any backend write.
type AnalysisError struct {
	Path string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Path, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Report is the full outcome of analyzing one file.
//
// Fields preserves source order. Rows are aligned with Fields; a missing or
// empty cell is the empty string and is treated as null everywhere downstream.
type Report struct {
	Fields      []string
	Profiles    []FieldProfile
	RecordCount int
	// ApproxBytes is a rough in-memory footprint of the loaded rows.
	ApproxBytes int64
	Rows        [][]string

	// RawRecords holds the original, unflattened records for hierarchical
	// input. The document backend imports these as-is so nesting survives;
	// tabular input leaves this nil.
	RawRecords []map[string]any
}

// AnalyzeFile reads and profiles the file at path.
//
// Errors:
//   - *AnalysisError when the file cannot be opened, parsed, or holds no records.
func AnalyzeFile(path string, format Format) (*Report, error) {
	var (
		fields []string
		rows   [][]string
		raw    []map[string]any
		err    error
	)

	switch format {
	case FormatTabular:
		fields, rows, err = readTabular(path)
	case FormatHierarchical:
		fields, rows, raw, err = readHierarchical(path)
	default:
		return nil, &AnalysisError{Path: path, Err: fmt.Errorf("unknown format %q", format)}
	}
	if err != nil {
		return nil, &AnalysisError{Path: path, Err: err}
	}
	if len(fields) == 0 || len(rows) == 0 {
		return nil, &AnalysisError{Path: path, Err: fmt.Errorf("no records found")}
	}

	rep := &Report{
		Fields:      fields,
		RecordCount: len(rows),
		Rows:        rows,
		RawRecords:  raw,
	}
	rep.Profiles = profileFields(fields, rows)
	for _, r := range rows {
		for _, v := range r {
			rep.ApproxBytes += int64(len(v)) + 16
		}
	}
	return rep, nil
}
