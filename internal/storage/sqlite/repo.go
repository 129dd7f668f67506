// Package sqlite implements the relational repository on modernc.org/sqlite.
//
// SQLite applies type affinity rather than strict column types, so the
// planned declarations (BIGINT, DECIMAL, TIMESTAMP) are used verbatim.
// Timestamps are stored as UTC RFC3339Nano strings for reliable round-trip
// behavior; the rollup views rely on strftime over that representation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chatdb/internal/plan"
	"chatdb/internal/storage"
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Kind() string             { return "sqlite" }
func (r *Repo) Class() plan.BackendClass { return plan.Relational }
func (r *Repo) Close()                   { _ = r.db.Close() }

// EnsureTarget drops and recreates the table, its indexes, and rollup views.
func (r *Repo) EnsureTarget(ctx context.Context, p *plan.SchemaPlan) error {
	for _, v := range p.Views {
		if _, err := r.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+ident(v.Name)); err != nil {
			return fmt.Errorf("drop view %s: %w", v.Name, err)
		}
	}
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+ident(p.Target)); err != nil {
		return fmt.Errorf("drop table %s: %w", p.Target, err)
	}

	if _, err := r.db.ExecContext(ctx, buildCreateTable(p)); err != nil {
		return fmt.Errorf("create table %s: %w", p.Target, err)
	}

	for _, idx := range p.Indexes {
		if _, err := r.db.ExecContext(ctx, buildCreateIndex(p.Target, idx)); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}

	for _, v := range p.Views {
		if _, err := r.db.ExecContext(ctx, buildCreateView(p.Target, v)); err != nil {
			return fmt.Errorf("create view %s: %w", v.Name, err)
		}
	}
	return nil
}

func buildCreateTable(p *plan.SchemaPlan) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(ident(p.Target))
	b.WriteString(" (id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, f := range p.Fields {
		b.WriteString(", ")
		b.WriteString(ident(f.Name))
		b.WriteString(" ")
		b.WriteString(f.Type)
	}
	b.WriteString(")")
	return b.String()
}

func buildCreateIndex(table string, idx plan.IndexSpec) string {
	var b strings.Builder
	b.WriteString("CREATE INDEX ")
	b.WriteString(ident(idx.Name))
	b.WriteString(" ON ")
	b.WriteString(ident(table))
	b.WriteString(" (")
	for i, f := range idx.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if idx.LengthLimit > 0 {
			// Expression index keeps oversized string keys inside page limits.
			fmt.Fprintf(&b, "substr(%s, 1, %d)", ident(f), idx.LengthLimit)
		} else {
			b.WriteString(ident(f))
		}
	}
	b.WriteString(")")
	return b.String()
}

func buildCreateView(table string, v plan.ViewSpec) string {
	layout := "%Y-%m-%d"
	bucket := "day"
	if v.Granularity == "month" {
		layout = "%Y-%m"
		bucket = "month"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE VIEW %s AS SELECT strftime('%s', %s) AS %s, COUNT(*) AS record_count",
		ident(v.Name), layout, ident(v.DateField), bucket)
	for _, n := range v.NumericFields {
		fmt.Fprintf(&b, ", SUM(%s) AS sum_%s", ident(n), n)
	}
	fmt.Fprintf(&b, " FROM %s GROUP BY 1", ident(table))
	return b.String()
}

// InsertBatch bulk-inserts one batch with a single multi-row statement.
func (r *Repo) InsertBatch(ctx context.Context, target string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident(target))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, sqliteArg(row[j]))
		}
		b.WriteString(")")
	}

	res, err := r.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// sqliteArg stores timestamps as RFC3339Nano strings.
func sqliteArg(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func (r *Repo) Query(ctx context.Context, query string) (*storage.ResultSet, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return storage.ScanRows(rows)
}

func (r *Repo) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repo) SampleData(ctx context.Context, target string, limit int) (*storage.ResultSet, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", ident(target), limit))
}

// ident quotes an identifier with double quotes.
func ident(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
