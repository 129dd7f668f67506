// Package plan turns field profiles into a concrete destination schema:
// sanitized names, backend-native types, an index plan, and rollup views.
//
// Planning is a pure function of the profiles. The same analysis input always
// yields the same plan, and every generated object name is derived from the
// target and field names alone, so re-creation is idempotent.
package plan

import (
	"fmt"

	"chatdb/internal/analyze"
)

// BackendClass distinguishes the two destination data models.
type BackendClass string

const (
	Relational BackendClass = "relational"
	Document   BackendClass = "document"
)

// IndexKind is the shape of one planned index.
type IndexKind string

const (
	IndexSingle   IndexKind = "single"
	IndexCompound IndexKind = "compound"
	IndexText     IndexKind = "text"
)

// FieldDef maps one source field to its destination column.
type FieldDef struct {
	// Name is the sanitized destination name.
	Name string
	// Source is the original field name from the file.
	Source string
	// Type is the backend-native column type (relational plans only).
	Type string
	// SourceType is the inferred primitive type driving coercion at load time.
	SourceType analyze.FieldType
	// DateLayout is the detected layout for date fields.
	DateLayout string
	// TextCap is the planned character cap for text columns; loaders clamp
	// over-length values to it. Zero means unbounded.
	TextCap int
}

// IndexSpec is one planned index.
type IndexSpec struct {
	Kind   IndexKind
	Name   string
	Fields []string
	// LengthLimit caps indexed string prefixes so keys stay inside engine
	// limits. Zero means no cap. Dialects that do not need one ignore it.
	LengthLimit int
}

// ViewSpec is one planned rollup view: record count plus sums of up to five
// numeric fields, grouped by calendar day or month of DateField.
type ViewSpec struct {
	Name          string
	Granularity   string // "day" or "month"
	DateField     string
	NumericFields []string
}

// SchemaPlan is the full destination plan for one import target.
type SchemaPlan struct {
	Target  string
	Class   BackendClass
	Fields  []FieldDef
	Indexes []IndexSpec
	Views   []ViewSpec

	// DateFields and NumericFields are sanitized names in source order,
	// kept for translation defaults (date window queries, rollups).
	DateFields    []string
	NumericFields []string
}

// FieldBySource returns the definition for an original source field name.
func (p *SchemaPlan) FieldBySource(source string) (FieldDef, bool) {
	for _, f := range p.Fields {
		if f.Source == source {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Build derives the plan for the given backend class.
//
// For the document class a raw sample record may be supplied; its nesting is
// inspected recursively for index candidates. A nil sample falls back to the
// flat profiles.
func Build(target string, class BackendClass, profiles []analyze.FieldProfile, sample map[string]any) (*SchemaPlan, error) {
	name := SanitizeName(target)
	if name == "" {
		return nil, fmt.Errorf("plan: empty target name after sanitizing %q", target)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("plan: no field profiles for %q", target)
	}

	switch class {
	case Relational:
		return buildRelational(name, profiles), nil
	case Document:
		return buildDocument(name, profiles, sample), nil
	default:
		return nil, fmt.Errorf("plan: unknown backend class %q", class)
	}
}
