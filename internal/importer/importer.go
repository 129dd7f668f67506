// Package importer loads an analyzed file into its planned destination.
// Imports are destructive-replace: the target is recreated from the plan,
// then the full record set is inserted in fixed-size batches.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chatdb/internal/analyze"
	"chatdb/internal/metrics"
	"chatdb/internal/plan"
	"chatdb/internal/storage"
)

// defaultBatchSize is the number of records per insert batch.
const defaultBatchSize = 5000

// maxWarnings caps how many coercion warnings one run collects; further
// failures are still counted but not itemized.
const maxWarnings = 50

// ImportError is a fatal import failure. The target may be left partially
// loaded; re-running the import recreates it from scratch.
type ImportError struct {
	Target string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %v", e.Target, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Result summarizes one completed import.
type Result struct {
	Target      string
	FieldCount  int
	RecordCount int64
	// Warnings itemizes cell values that did not coerce to the planned type
	// and were loaded as NULL instead.
	Warnings []string
	// WarningCount is the full count, including warnings dropped past the
	// itemization cap.
	WarningCount int
	// SkippedCount is the number of rows lost to failed insert batches on the
	// relational path. Skipped batches do not abort the import.
	SkippedCount int64
	Elapsed      time.Duration
}

// Engine runs imports. One Engine serves any number of connections.
type Engine struct {
	log   *zap.Logger
	met   metrics.Backend
	batch int
}

func NewEngine(log *zap.Logger, met metrics.Backend) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if met == nil {
		met = metrics.Nop{}
	}
	return &Engine{log: log, met: met, batch: defaultBatchSize}
}

// SetBatchSize overrides the insert batch size. Values <= 0 keep the default.
func (e *Engine) SetBatchSize(n int) {
	if n > 0 {
		e.batch = n
	}
}

// Run recreates the plan's target on the connection and loads every record
// from the report.
//
// Errors:
//   - *ImportError wrapping a fatal backend failure: target creation, a
//     canceled context, or a load where no batch could be inserted at all.
//     Cell-level coercion failures surface as Result.Warnings, and a failed
//     relational batch is skipped while the load continues.
func (e *Engine) Run(ctx context.Context, conn *storage.Conn, rep *analyze.Report, p *plan.SchemaPlan) (*Result, error) {
	start := time.Now()

	if err := conn.Repo().EnsureTarget(ctx, p); err != nil {
		return nil, &ImportError{Target: p.Target, Err: err}
	}
	e.log.Info("target recreated",
		zap.String("target", p.Target),
		zap.String("backend", conn.Kind()),
		zap.Int("fields", len(p.Fields)),
		zap.Int("indexes", len(p.Indexes)),
		zap.Int("views", len(p.Views)))

	res := &Result{Target: p.Target, FieldCount: len(p.Fields)}

	var err error
	if doc, ok := conn.Repo().(storage.DocumentStore); ok {
		err = e.loadDocuments(ctx, doc, rep, p, res)
	} else if rel, ok := conn.Repo().(storage.Relational); ok {
		err = e.loadRows(ctx, rel, rep, p, res)
	} else {
		err = fmt.Errorf("backend %q supports neither rows nor documents", conn.Kind())
	}
	if err != nil {
		return nil, &ImportError{Target: p.Target, Err: err}
	}

	res.Elapsed = time.Since(start)
	e.met.IncCounter("chatdb.import.records", float64(res.RecordCount), "backend:"+conn.Kind())
	e.met.ObserveMS("chatdb.import.duration_ms", float64(res.Elapsed)/float64(time.Millisecond), "backend:"+conn.Kind())
	e.log.Info("import finished",
		zap.String("target", p.Target),
		zap.Int64("records", res.RecordCount),
		zap.Int("warnings", res.WarningCount),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (e *Engine) loadRows(ctx context.Context, rel storage.Relational, rep *analyze.Report, p *plan.SchemaPlan, res *Result) error {
	srcIdx := make(map[string]int, len(rep.Fields))
	for i, f := range rep.Fields {
		srcIdx[f] = i
	}

	columns := make([]string, len(p.Fields))
	for i, fd := range p.Fields {
		columns[i] = fd.Name
	}

	var firstErr error
	batch := make([][]any, 0, e.batch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := rel.InsertBatch(ctx, p.Target, columns, batch)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			// A failed batch is skipped; the load continues with the next one.
			res.SkippedCount += int64(len(batch))
			res.WarningCount++
			if len(res.Warnings) < maxWarnings {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("batch of %d rows skipped: %v", len(batch), err))
			}
			if firstErr == nil {
				firstErr = err
			}
			e.log.Warn("insert batch failed, continuing",
				zap.String("target", p.Target),
				zap.Int("rows", len(batch)),
				zap.Error(err))
			batch = batch[:0]
			return nil
		}
		res.RecordCount += n
		batch = batch[:0]
		return nil
	}

	for rowNum, row := range rep.Rows {
		args := make([]any, len(p.Fields))
		for i, fd := range p.Fields {
			var raw string
			if idx, ok := srcIdx[fd.Source]; ok && idx < len(row) {
				raw = row[idx]
			}
			v, err := coerce(raw, fd)
			if err != nil {
				res.WarningCount++
				if len(res.Warnings) < maxWarnings {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("row %d field %s: %v", rowNum+1, fd.Name, err))
				}
				v = nil
			}
			args[i] = v
		}
		batch = append(batch, args)

		if len(batch) >= e.batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	// When not a single batch went in, the planned columns do not fit the
	// table at all. That is a schema-level mismatch, not bad row data.
	if res.RecordCount == 0 && firstErr != nil {
		return firstErr
	}
	return nil
}

func (e *Engine) loadDocuments(ctx context.Context, doc storage.DocumentStore, rep *analyze.Report, p *plan.SchemaPlan, res *Result) error {
	docs := rep.RawRecords
	if docs == nil {
		docs = e.documentsFromRows(rep, p, res)
	} else {
		docs = typedRawRecords(rep)
	}

	for off := 0; off < len(docs); off += e.batch {
		end := off + e.batch
		if end > len(docs) {
			end = len(docs)
		}
		n, err := doc.InsertDocuments(ctx, p.Target, docs[off:end])
		if err != nil {
			return err
		}
		res.RecordCount += n
	}
	return nil
}

// typedRawRecords converts top-level date strings in raw records to
// time.Time so pipeline date filters compare against real timestamps.
// Nested values and unparseable strings import as-is.
func typedRawRecords(rep *analyze.Report) []map[string]any {
	dateLayouts := make(map[string]string)
	for _, prof := range rep.Profiles {
		if prof.SourceType == analyze.TypeDate && prof.DateLayout != "" {
			dateLayouts[prof.Name] = prof.DateLayout
		}
	}
	if len(dateLayouts) == 0 {
		return rep.RawRecords
	}

	docs := make([]map[string]any, len(rep.RawRecords))
	for i, src := range rep.RawRecords {
		d := make(map[string]any, len(src))
		for k, v := range src {
			if layout, ok := dateLayouts[k]; ok {
				if s, isStr := v.(string); isStr {
					if t, parsed := analyze.ParseDate(s, layout); parsed {
						d[k] = t
						continue
					}
				}
			}
			d[k] = v
		}
		docs[i] = d
	}
	return docs
}

// documentsFromRows converts a tabular report into typed documents so CSV
// sources import into the document store with native numbers, booleans, and
// dates rather than strings.
func (e *Engine) documentsFromRows(rep *analyze.Report, p *plan.SchemaPlan, res *Result) []map[string]any {
	srcIdx := make(map[string]int, len(rep.Fields))
	for i, f := range rep.Fields {
		srcIdx[f] = i
	}

	defs := make([]plan.FieldDef, 0, len(rep.Fields))
	for _, prof := range rep.Profiles {
		fd, ok := p.FieldBySource(prof.Name)
		if !ok {
			fd = plan.FieldDef{Name: prof.Name, Source: prof.Name, SourceType: prof.SourceType, DateLayout: prof.DateLayout}
		}
		defs = append(defs, fd)
	}

	docs := make([]map[string]any, 0, len(rep.Rows))
	for rowNum, row := range rep.Rows {
		d := make(map[string]any, len(defs))
		for _, fd := range defs {
			var raw string
			if idx, ok := srcIdx[fd.Source]; ok && idx < len(row) {
				raw = row[idx]
			}
			v, err := coerce(raw, fd)
			if err != nil {
				res.WarningCount++
				if len(res.Warnings) < maxWarnings {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("row %d field %s: %v", rowNum+1, fd.Name, err))
				}
				v = nil
			}
			if v != nil {
				d[fd.Name] = v
			}
		}
		docs = append(docs, d)
	}
	return docs
}

// coerce converts one raw cell to the typed value for its planned field.
// Empty cells are NULL. Over-length text is clamped to the planned column
// cap so a long value cannot fail its whole insert batch.
func coerce(raw string, fd plan.FieldDef) (any, error) {
	if raw == "" {
		return nil, nil
	}

	switch fd.SourceType {
	case analyze.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", raw)
		}
		return n, nil
	case analyze.TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case analyze.TypeBoolean:
		b, ok := analyze.ParseBool(raw)
		if !ok {
			return nil, fmt.Errorf("%q is not a boolean", raw)
		}
		return b, nil
	case analyze.TypeDate:
		t, ok := analyze.ParseDate(raw, fd.DateLayout)
		if !ok {
			return nil, fmt.Errorf("%q does not match the detected date layout", raw)
		}
		return t, nil
	default:
		if fd.TextCap > 0 {
			if r := []rune(raw); len(r) > fd.TextCap {
				return string(r[:fd.TextCap]), nil
			}
		}
		return raw, nil
	}
}
