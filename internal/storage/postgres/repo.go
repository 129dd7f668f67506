// Package postgres implements the relational repository on pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatdb/internal/plan"
	"chatdb/internal/storage"
)

type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Kind() string             { return "postgres" }
func (r *Repo) Class() plan.BackendClass { return plan.Relational }
func (r *Repo) Close()                   { r.pool.Close() }

// EnsureTarget drops and recreates the table, its indexes, and rollup views.
func (r *Repo) EnsureTarget(ctx context.Context, p *plan.SchemaPlan) error {
	for _, v := range p.Views {
		if _, err := r.pool.Exec(ctx, "DROP VIEW IF EXISTS "+ident(v.Name)); err != nil {
			return fmt.Errorf("drop view %s: %w", v.Name, err)
		}
	}
	if _, err := r.pool.Exec(ctx, "DROP TABLE IF EXISTS "+ident(p.Target)+" CASCADE"); err != nil {
		return fmt.Errorf("drop table %s: %w", p.Target, err)
	}

	if _, err := r.pool.Exec(ctx, buildCreateTable(p)); err != nil {
		return fmt.Errorf("create table %s: %w", p.Target, err)
	}
	for _, idx := range p.Indexes {
		if _, err := r.pool.Exec(ctx, buildCreateIndex(p.Target, idx)); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	for _, v := range p.Views {
		if _, err := r.pool.Exec(ctx, buildCreateView(p.Target, v)); err != nil {
			return fmt.Errorf("create view %s: %w", v.Name, err)
		}
	}
	return nil
}

func buildCreateTable(p *plan.SchemaPlan) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(ident(p.Target))
	b.WriteString(" (id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY")
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
			// Prefix expression keeps long text keys under the btree limit.
			fmt.Fprintf(&b, "(left(%s, %d))", ident(f), idx.LengthLimit)
		} else {
			b.WriteString(ident(f))
		}
	}
	b.WriteString(")")
	return b.String()
}

func buildCreateView(table string, v plan.ViewSpec) string {
	trunc := "day"
	bucket := "day"
	if v.Granularity == "month" {
		trunc = "month"
		bucket = "month"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE VIEW %s AS SELECT date_trunc('%s', %s) AS %s, COUNT(*) AS record_count",
		ident(v.Name), trunc, ident(v.DateField), bucket)
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
	ph := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", ph)
			ph++
			args = append(args, row[j])
		}
		b.WriteString(")")
	}

	cmd, err := r.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *Repo) Query(ctx context.Context, query string) (*storage.ResultSet, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	out := &storage.ResultSet{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		out.Records = append(out.Records, rec)
	}
	return out, rows.Err()
}

func (r *Repo) ListTargets(ctx context.Context) ([]string, error) {
	rs, err := r.Query(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rs.Records))
	for _, rec := range rs.Records {
		if name, ok := rec["table_name"].(string); ok {
			out = append(out, name)
		}
	}
	return out, nil
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
