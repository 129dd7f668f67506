package analyze

import (
	"math"
	"strconv"
	"strings"
)

// FieldType is the inferred primitive type of one field.
type FieldType string

const (
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeText    FieldType = "text"
)

// keywordHints are name fragments that mark a field as keyword-indexable
// regardless of its selectivity.
var keywordHints = []string{"id", "key", "code", "date", "category", "type", "status"}

// KeywordIndexable reports whether a field name carries an indexing hint.
func KeywordIndexable(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range keywordHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// NumericStats summarizes an integer or float column.
type NumericStats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// LengthStats summarizes string lengths of a text column.
type LengthStats struct {
	Min  int
	Max  int
	Mean float64
}

// FieldProfile is the immutable per-field outcome of one analysis run.
type FieldProfile struct {
	Name          string
	SourceType    FieldType
	Nullable      bool
	DistinctCount int

	Numeric *NumericStats // set for integer/float fields
	Length  *LengthStats  // set for text fields

	// SampleValues holds up to five distinct non-null values in first-seen order.
	SampleValues []string

	// DateLayout is the Go layout the whole column parses under, when
	// SourceType is date.
	DateLayout      string
	IsPotentialDate bool

	// Selective marks distinct/record ratio in [0.01, 0.5], a candidate for a
	// secondary index.
	Selective bool
	// KeywordIndexable marks a field whose name contains an indexing hint
	// (id, key, code, date, category, type, status).
	KeywordIndexable bool
}

// profileFields computes one FieldProfile per field over the full row set.
// Row cells equal to "" are null and excluded from type decisions and stats.
func profileFields(fields []string, rows [][]string) []FieldProfile {
	profiles := make([]FieldProfile, len(fields))

	for col, name := range fields {
		p := FieldProfile{Name: name}

		values := make([]string, 0, len(rows))
		for _, r := range rows {
			if col >= len(r) || r[col] == "" {
				p.Nullable = true
				continue
			}
			values = append(values, r[col])
		}

		p.SourceType, p.DateLayout = inferFieldType(values)
		p.IsPotentialDate = p.SourceType == TypeDate

		distinct := make(map[string]struct{}, len(values))
		for _, v := range values {
			if _, seen := distinct[v]; !seen {
				distinct[v] = struct{}{}
				if len(p.SampleValues) < 5 {
					p.SampleValues = append(p.SampleValues, v)
				}
			}
		}
		p.DistinctCount = len(distinct)

		switch p.SourceType {
		case TypeInteger, TypeFloat:
			p.Numeric = numericStats(values)
		case TypeText:
			p.Length = lengthStats(values)
		}

		if n := len(rows); n > 0 && len(values) > 0 {
			ratio := float64(p.DistinctCount) / float64(n)
			p.Selective = ratio >= 0.01 && ratio <= 0.5
		}
		p.KeywordIndexable = KeywordIndexable(name)

		profiles[col] = p
	}

	return profiles
}

// inferFieldType classifies a column from its non-null values.
//
// Priority order: date, integer, float, boolean, text. A column is a date only
// when a single layout from the fixed ordered list parses every value; the
// first such layout wins, so ISO dates beat the ambiguous numeric layouts.
func inferFieldType(values []string) (FieldType, string) {
	if len(values) == 0 {
		return TypeText, ""
	}

	if layout, ok := detectDateLayout(values); ok {
		return TypeDate, layout
	}

	allInt := true
	allFloat := true
	allBool := true
	for _, v := range values {
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := ParseBool(v); !ok {
				allBool = false
			}
		}
		if !allInt && !allFloat && !allBool {
			break
		}
	}

	switch {
	case allInt:
		return TypeInteger, ""
	case allFloat:
		return TypeFloat, ""
	case allBool:
		return TypeBoolean, ""
	default:
		return TypeText, ""
	}
}

// ParseBool accepts the common truthy/falsy spellings. The second result
// reports whether s was recognized at all.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func numericStats(values []string) *NumericStats {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return nil
	}

	st := &NumericStats{Min: nums[0], Max: nums[0]}
	var sum float64
	for _, f := range nums {
		if f < st.Min {
			st.Min = f
		}
		if f > st.Max {
			st.Max = f
		}
		sum += f
	}
	st.Mean = sum / float64(len(nums))

	var sq float64
	for _, f := range nums {
		d := f - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(len(nums)))
	return st
}

func lengthStats(values []string) *LengthStats {
	if len(values) == 0 {
		return nil
	}
	st := &LengthStats{Min: len(values[0]), Max: len(values[0])}
	var sum int
	for _, v := range values {
		n := len(v)
		if n < st.Min {
			st.Min = n
		}
		if n > st.Max {
			st.Max = n
		}
		sum += n
	}
	st.Mean = float64(sum) / float64(len(values))
	return st
}

// DateFields returns the names of date-typed profiles in source order.
func DateFields(profiles []FieldProfile) []string {
	var out []string
	for _, p := range profiles {
		if p.SourceType == TypeDate {
			out = append(out, p.Name)
		}
	}
	return out
}

// NumericFields returns the names of integer/float profiles in source order.
func NumericFields(profiles []FieldProfile) []string {
	var out []string
	for _, p := range profiles {
		if p.SourceType == TypeInteger || p.SourceType == TypeFloat {
			out = append(out, p.Name)
		}
	}
	return out
}
