package translate

import (
	"fmt"
	"strings"

	"chatdb/internal/plan"
)

// Dialect selects relational rendering quirks (identifier quoting and date
// arithmetic).
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectMSSQL    Dialect = "mssql"
)

// DialectFor maps a storage backend kind onto its SQL dialect.
func DialectFor(kind string) Dialect {
	switch kind {
	case "sqlite":
		return DialectSQLite
	case "mssql":
		return DialectMSSQL
	default:
		return DialectPostgres
	}
}

// RenderSQL renders the intent as SQL text for the dialect.
//
// Field and table tokens extracted from free text are sanitized before they
// are interpolated; the destructive-keyword denylist in the executor is the
// second line of defense.
func RenderSQL(in Intent, t Target, d Dialect) string {
	table := safeIdent(t.Name)
	pk := t.PrimaryKey
	if pk == "" {
		pk = "id"
	}

	switch in.Operation {
	case OpCount:
		return fmt.Sprintf("SELECT COUNT(*) AS %s FROM %s", quote("count", d), quote(table, d))

	case OpFilterRecent:
		dateField := t.DateField
		if dateField == "" {
			dateField = "date"
		}
		return fmt.Sprintf("SELECT * FROM %s WHERE %s >= %s",
			quote(table, d), quote(safeIdent(dateField), d), dateCutoff(in.WindowN, in.WindowUnit, d))

	case OpGroupByAggregate:
		group := quote(safeIdent(in.GroupField), d)
		agg := "COUNT(*)"
		if in.AggFunc != "count" && in.AggField != "" {
			agg = fmt.Sprintf("%s(%s)", strings.ToUpper(in.AggFunc), quote(safeIdent(in.AggField), d))
		}
		return fmt.Sprintf("SELECT %s, %s AS %s FROM %s GROUP BY %s",
			group, agg, quote("result", d), quote(table, d), group)

	case OpJoin:
		joined := quote(safeIdent(in.JoinTarget), d)
		field := quote(safeIdent(in.JoinField), d)
		return fmt.Sprintf("SELECT * FROM %s %s %s ON %s.%s = %s.%s",
			quote(table, d), joinClause(in.JoinKind), joined,
			quote(table, d), field, joined, field)

	case OpMovingAverage:
		field := quote(safeIdent(in.AvgField), d)
		preceding := in.WindowSize - 1
		if preceding < 0 {
			preceding = 0
		}
		return fmt.Sprintf(
			"SELECT *, AVG(%s) OVER (ORDER BY %s ROWS BETWEEN %d PRECEDING AND CURRENT ROW) AS %s FROM %s",
			field, quote(safeIdent(pk), d), preceding, quote("movingAvg", d), quote(table, d))

	case OpRank:
		// Ranking is only rendered on the document path; the relational side
		// deliberately degrades to the select-all fallback.
		return fmt.Sprintf("SELECT * FROM %s", quote(table, d))

	default:
		return fmt.Sprintf("SELECT * FROM %s", quote(table, d))
	}
}

func joinClause(k JoinKind) string {
	switch k {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinOuter:
		return "FULL OUTER JOIN"
	default:
		return "JOIN"
	}
}

// dateCutoff renders "now minus N units" in the dialect's date arithmetic.
func dateCutoff(n int, unit string, d Dialect) string {
	switch d {
	case DialectSQLite:
		return fmt.Sprintf("date('now', '-%d %ss')", n, unit)
	case DialectMSSQL:
		return fmt.Sprintf("DATEADD(%s, -%d, GETDATE())", unit, n)
	default:
		return fmt.Sprintf("CURRENT_DATE - INTERVAL '%d %ss'", n, unit)
	}
}

// safeIdent funnels extracted tokens through the planner's sanitizer so free
// text cannot smuggle arbitrary SQL into an identifier position.
func safeIdent(s string) string {
	out := plan.SanitizeName(s)
	if out == "" {
		return "_"
	}
	return out
}

func quote(ident string, d Dialect) string {
	if d == DialectMSSQL {
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
