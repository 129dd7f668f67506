// Package mssql implements the relational repository on go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"chatdb/internal/plan"
	"chatdb/internal/storage"
)

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Kind() string             { return "mssql" }
func (r *Repo) Class() plan.BackendClass { return plan.Relational }
func (r *Repo) Close()                   { _ = r.db.Close() }

// columnType maps planned generic types onto SQL Server equivalents.
func columnType(t string) string {
	switch t {
	case "BOOLEAN":
		return "BIT"
	case "TIMESTAMP(6)":
		return "DATETIME2(6)"
	default:
		return t
	}
}

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
	b.WriteString(" (id BIGINT IDENTITY(1,1) PRIMARY KEY")
	for _, f := range p.Fields {
		b.WriteString(", ")
		b.WriteString(ident(f.Name))
		b.WriteString(" ")
		b.WriteString(columnType(f.Type))
	}
	b.WriteString(")")
	return b.String()
}

// buildCreateIndex ignores LengthLimit: the planned VARCHAR caps already fit
// inside the 1700-byte nonclustered key limit.
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
		b.WriteString(ident(f))
	}
	b.WriteString(")")
	return b.String()
}

func buildCreateView(table string, v plan.ViewSpec) string {
	bucketExpr := fmt.Sprintf("CONVERT(date, %s)", ident(v.DateField))
	bucket := "day"
	if v.Granularity == "month" {
		bucketExpr = fmt.Sprintf("FORMAT(%s, 'yyyy-MM')", ident(v.DateField))
		bucket = "month"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE VIEW %s AS SELECT %s AS %s, COUNT(*) AS record_count",
		ident(v.Name), bucketExpr, bucket)
	for _, n := range v.NumericFields {
		fmt.Fprintf(&b, ", SUM(%s) AS sum_%s", ident(n), n)
	}
	fmt.Fprintf(&b, " FROM %s GROUP BY %s", ident(table), bucketExpr)
	return b.String()
}

// InsertBatch bulk-inserts one batch. SQL Server caps a VALUES list at 1000
// rows and a statement at 2100 parameters, so the batch is split into
// statement-sized chunks here.
func (r *Repo) InsertBatch(ctx context.Context, target string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	perStmt := 2000 / len(columns)
	if perStmt > 1000 {
		perStmt = 1000
	}
	if perStmt < 1 {
		perStmt = 1
	}

	var total int64
	for start := 0; start < len(rows); start += perStmt {
		end := start + perStmt
		if end > len(rows) {
			end = len(rows)
		}
		n, err := r.insertChunk(ctx, target, columns, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *Repo) insertChunk(ctx context.Context, target string, columns []string, rows [][]any) (int64, error) {
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
			fmt.Fprintf(&b, "@p%d", ph)
			ph++
			args = append(args, row[j])
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
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME")
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
	return r.Query(ctx, fmt.Sprintf("SELECT TOP %d * FROM %s", limit, ident(target)))
}

// ident quotes an identifier with brackets.
func ident(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}
