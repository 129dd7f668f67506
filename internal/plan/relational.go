package plan

import (
	"fmt"

	"chatdb/internal/analyze"
)

// Relational type mapping. Text gets a bounded varchar; keyword-indexable
// text gets the shorter cap so a whole value fits inside index key limits.
const (
	typeInteger   = "BIGINT"
	typeDecimal   = "DECIMAL(20,6)"
	typeTimestamp = "TIMESTAMP(6)"
	typeBoolean   = "BOOLEAN"
	typeText      = "VARCHAR(1024)"
	typeTextShort = "VARCHAR(255)"
	textCap       = 1024
	textCapShort  = 255

	// stringIndexPrefix caps indexed string prefixes.
	stringIndexPrefix = 191

	maxCompoundDates    = 2
	maxCompoundNumerics = 3
	maxViewNumerics     = 5
)

func buildRelational(target string, profiles []analyze.FieldProfile) *SchemaPlan {
	p := &SchemaPlan{Target: target, Class: Relational}

	names := dedupeNames(profiles)
	for i, prof := range profiles {
		def := FieldDef{
			Name:       names[i],
			Source:     prof.Name,
			SourceType: prof.SourceType,
			DateLayout: prof.DateLayout,
		}
		switch prof.SourceType {
		case analyze.TypeInteger:
			def.Type = typeInteger
			p.NumericFields = append(p.NumericFields, def.Name)
		case analyze.TypeFloat:
			def.Type = typeDecimal
			p.NumericFields = append(p.NumericFields, def.Name)
		case analyze.TypeDate:
			def.Type = typeTimestamp
			p.DateFields = append(p.DateFields, def.Name)
		case analyze.TypeBoolean:
			def.Type = typeBoolean
		default:
			if prof.KeywordIndexable {
				def.Type = typeTextShort
				def.TextCap = textCapShort
			} else {
				def.Type = typeText
				def.TextCap = textCap
			}
		}
		p.Fields = append(p.Fields, def)
	}

	// Single-field indexes: keyword hints win the name, selectivity is the
	// fallback trigger.
	for i, prof := range profiles {
		def := p.Fields[i]
		var name string
		switch {
		case prof.KeywordIndexable:
			name = SingleIndexName(def.Name)
		case prof.Selective:
			name = SelectivityIndexName(def.Name)
		default:
			continue
		}
		idx := IndexSpec{Kind: IndexSingle, Name: name, Fields: []string{def.Name}}
		if prof.SourceType == analyze.TypeText {
			idx.LengthLimit = stringIndexPrefix
		}
		p.Indexes = append(p.Indexes, idx)
	}

	// Compound (date, numeric) indexes for time-series aggregation.
	for _, d := range capSlice(p.DateFields, maxCompoundDates) {
		for _, n := range capSlice(p.NumericFields, maxCompoundNumerics) {
			p.Indexes = append(p.Indexes, IndexSpec{
				Kind:   IndexCompound,
				Name:   AnalyticsIndexName(d, n),
				Fields: []string{d, n},
			})
		}
	}

	// Daily and monthly rollups over the first date field.
	if len(p.DateFields) > 0 {
		nums := capSlice(p.NumericFields, maxViewNumerics)
		p.Views = append(p.Views,
			ViewSpec{Name: DailyViewName(target), Granularity: "day", DateField: p.DateFields[0], NumericFields: nums},
			ViewSpec{Name: MonthlyViewName(target), Granularity: "month", DateField: p.DateFields[0], NumericFields: nums},
		)
	}

	return p
}

// dedupeNames sanitizes profile names and resolves collisions with a
// deterministic numeric suffix.
func dedupeNames(profiles []analyze.FieldProfile) []string {
	out := make([]string, len(profiles))
	used := map[string]int{}
	for i, prof := range profiles {
		name := SanitizeName(prof.Name)
		if name == "" {
			name = fmt.Sprintf("field_%d", i+1)
		}
		if n, clash := used[name]; clash {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		used[name] = 1
		out[i] = name
	}
	return out
}

func capSlice(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
