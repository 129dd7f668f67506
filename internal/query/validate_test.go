package query

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sql         string
		wantKeyword string
		wantOK      bool
	}{
		{name: "plain_select", sql: "SELECT * FROM orders", wantOK: true},
		{name: "lowercase_select", sql: "select id from orders", wantOK: true},
		{name: "leading_whitespace", sql: "   \n SELECT 1", wantOK: true},
		{name: "columns_containing_keywords", sql: "SELECT created_at, last_update, updated_by FROM t", wantOK: true},
		{name: "drop", sql: "DROP TABLE orders", wantKeyword: ""},
		{name: "trailing_drop", sql: "SELECT * FROM orders; DROP TABLE orders", wantKeyword: "drop"},
		{name: "delete_subquery", sql: "SELECT * FROM orders WHERE id IN (DELETE FROM x RETURNING id)", wantKeyword: "delete"},
		{name: "truncate", sql: "SELECT 1; TRUNCATE orders", wantKeyword: "truncate"},
		{name: "alter", sql: "SELECT 1; ALTER TABLE t ADD c int", wantKeyword: "alter"},
		{name: "create", sql: "SELECT 1; CREATE TABLE t (id int)", wantKeyword: "create"},
		{name: "insert", sql: "SELECT 1; INSERT INTO t VALUES (1)", wantKeyword: "insert"},
		{name: "update", sql: "SELECT 1; UPDATE t SET c = 1", wantKeyword: "update"},
		{name: "not_a_select", sql: "SHOW TABLES", wantKeyword: ""},
		{name: "quoted_column_named_update", sql: `SELECT "update", "delete" FROM "orders"`, wantOK: true},
		{name: "bracket_quoted_column", sql: "SELECT [update] FROM [orders]", wantOK: true},
		{name: "keyword_in_string_literal", sql: "SELECT * FROM t WHERE note = 'please drop table x'", wantOK: true},
		{name: "quoting_cannot_mask_bare_keyword", sql: `SELECT "note" FROM t; DROP TABLE t`, wantKeyword: "drop"},
		{name: "unterminated_literal_still_scanned", sql: "SELECT '; DROP TABLE t", wantKeyword: "drop"},
		{name: "keyword_inside_line_comment_still_must_select", sql: "-- DROP TABLE t\nSELECT 1", wantOK: true},
		{name: "keyword_hidden_in_block_comment", sql: "SELECT 1 /* DROP TABLE t */", wantOK: true},
		{name: "comment_cannot_mask_statement", sql: "/* harmless */ DELETE FROM t", wantKeyword: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateSQL(tc.sql)
			if tc.wantOK {
				if err != nil {
					t.Fatalf("ValidateSQL(%q) err=%v, want nil", tc.sql, err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateSQL(%q) err=%v, want *ValidationError", tc.sql, err)
			}
			if tc.wantKeyword != "" && verr.Keyword != tc.wantKeyword {
				t.Fatalf("Keyword=%q, want %q", verr.Keyword, tc.wantKeyword)
			}
		})
	}
}

func TestStripComments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		gone string
	}{
		{name: "line", in: "SELECT 1 -- trailing note", gone: "trailing"},
		{name: "block", in: "SELECT /* inline */ 1", gone: "inline"},
		{name: "multiline_block", in: "SELECT 1 /* a\nb\nc */", gone: "b"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := StripComments(tc.in)
			if strings.Contains(got, tc.gone) {
				t.Fatalf("StripComments(%q)=%q still contains %q", tc.in, got, tc.gone)
			}
			if !strings.Contains(got, "SELECT") {
				t.Fatalf("StripComments(%q)=%q lost statement text", tc.in, got)
			}
		})
	}
}

func TestHistoryRecentOrderAndLimit(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	for i := 0; i < 15; i++ {
		h.Append(Entry{Query: strings.Repeat("x", i + 1), Success: true})
	}

	got := h.Recent(0)
	if len(got) != 10 {
		t.Fatalf("Recent(0) len=%d, want default 10", len(got))
	}
	if len(got[0].Query) != 15 {
		t.Fatalf("Recent(0)[0] is not the newest entry: %q", got[0].Query)
	}
	for i := 1; i < len(got); i++ {
		if len(got[i].Query) >= len(got[i-1].Query) {
			t.Fatalf("Recent not newest-first at %d", i)
		}
	}

	if got := h.Recent(3); len(got) != 3 {
		t.Fatalf("Recent(3) len=%d, want 3", len(got))
	}
	if got := h.Recent(100); len(got) != 15 {
		t.Fatalf("Recent(100) len=%d, want all 15", len(got))
	}
	if h.Len() != 15 {
		t.Fatalf("Len()=%d, want 15", h.Len())
	}
}
