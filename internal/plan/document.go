package plan

import (
	"encoding/json"
	"sort"
	"strings"

	"chatdb/internal/analyze"
)

// buildDocument plans a document-store destination. There is no column
// typing; the plan is the index set derived from one sample record (walked
// recursively) or, when no raw sample exists, from the flat profiles.
func buildDocument(target string, profiles []analyze.FieldProfile, sample map[string]any) *SchemaPlan {
	p := &SchemaPlan{Target: target, Class: Document}

	names := dedupeNames(profiles)
	for i, prof := range profiles {
		p.Fields = append(p.Fields, FieldDef{
			Name:       names[i],
			Source:     prof.Name,
			SourceType: prof.SourceType,
			DateLayout: prof.DateLayout,
		})
		switch prof.SourceType {
		case analyze.TypeInteger, analyze.TypeFloat:
			p.NumericFields = append(p.NumericFields, names[i])
		case analyze.TypeDate:
			p.DateFields = append(p.DateFields, names[i])
		}
	}

	var cands fieldCandidates
	if sample != nil {
		walkSample("", sample, &cands)
	} else {
		candidatesFromProfiles(profiles, &cands)
	}

	for _, f := range cands.keyword {
		p.Indexes = append(p.Indexes, IndexSpec{
			Kind:   IndexSingle,
			Name:   SingleIndexName(pathIdent(f)),
			Fields: []string{f},
		})
	}
	for _, f := range cands.multiWord {
		p.Indexes = append(p.Indexes, IndexSpec{
			Kind:   IndexText,
			Name:   TextIndexName(pathIdent(f)),
			Fields: []string{f},
		})
	}
	for _, d := range capSlice(cands.dates, maxCompoundDates) {
		for _, n := range capSlice(cands.numerics, maxCompoundNumerics) {
			p.Indexes = append(p.Indexes, IndexSpec{
				Kind:   IndexCompound,
				Name:   AnalyticsIndexName(pathIdent(d), pathIdent(n)),
				Fields: []string{d, n},
			})
		}
	}

	return p
}

// fieldCandidates collects index candidates found while inspecting a sample
// record. Field entries are dotted paths into the document.
type fieldCandidates struct {
	keyword   []string
	multiWord []string
	dates     []string
	numerics  []string
}

// walkSample inspects one document recursively. Keys are visited in sorted
// order so the resulting index plan is deterministic.
func walkSample(prefix string, doc map[string]any, out *fieldCandidates) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		v := doc[k]

		if nested, ok := v.(map[string]any); ok {
			walkSample(path, nested, out)
			continue
		}

		if analyze.KeywordIndexable(k) {
			out.keyword = append(out.keyword, path)
		}

		switch t := v.(type) {
		case string:
			if strings.Contains(strings.TrimSpace(t), " ") && !looksLikeDate(t) {
				out.multiWord = append(out.multiWord, path)
			}
			if looksLikeDate(t) {
				out.dates = append(out.dates, path)
			}
		case json.Number, float64, int, int64:
			out.numerics = append(out.numerics, path)
		}
	}
}

func candidatesFromProfiles(profiles []analyze.FieldProfile, out *fieldCandidates) {
	names := dedupeNames(profiles)
	for i, prof := range profiles {
		name := names[i]
		if prof.KeywordIndexable {
			out.keyword = append(out.keyword, name)
		}
		switch prof.SourceType {
		case analyze.TypeDate:
			out.dates = append(out.dates, name)
		case analyze.TypeInteger, analyze.TypeFloat:
			out.numerics = append(out.numerics, name)
		case analyze.TypeText:
			if prof.Length != nil && prof.Length.Mean > 0 && hasMultiWordSample(prof.SampleValues) {
				out.multiWord = append(out.multiWord, name)
			}
		}
	}
}

func hasMultiWordSample(samples []string) bool {
	for _, s := range samples {
		if strings.Contains(strings.TrimSpace(s), " ") {
			return true
		}
	}
	return false
}

func looksLikeDate(s string) bool {
	_, ok := analyze.ParseDate(strings.TrimSpace(s), "")
	return ok
}

// pathIdent flattens a dotted document path into an identifier for naming.
func pathIdent(path string) string {
	return SanitizeName(strings.ReplaceAll(path, ".", "_"))
}
