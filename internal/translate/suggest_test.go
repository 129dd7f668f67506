package translate

import (
	"strings"
	"testing"
)

func TestSuggest_AllPhrasesParse(t *testing.T) {
	t.Parallel()

	got := Suggest("orders", []string{"order_id", "order_date", "amount", "category"})
	if len(got) < 4 {
		t.Fatalf("Suggest()=%v, want richer suggestions for a full schema", got)
	}
	for _, phrase := range got {
		if _, err := Parse(phrase); err != nil {
			t.Fatalf("suggestion %q does not parse: %v", phrase, err)
		}
	}
}

func TestSuggest_ColumnDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		columns []string
		want    string
		absent  string
	}{
		{
			name:    "date_column_adds_recent_window",
			columns: []string{"order_date"},
			want:    "last 30 days",
			absent:  "moving average",
		},
		{
			name:    "numeric_and_group_add_aggregation",
			columns: []string{"amount", "category"},
			want:    "sum amount group by category",
			absent:  "last 30 days",
		},
		{
			name:    "bare_columns_keep_basics_only",
			columns: []string{"x", "y"},
			want:    "count records in t",
			absent:  "group by",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := strings.Join(Suggest("t", tc.columns), "\n")
			if !strings.Contains(got, tc.want) {
				t.Fatalf("Suggest(%v)=%q, want %q", tc.columns, got, tc.want)
			}
			if strings.Contains(got, tc.absent) {
				t.Fatalf("Suggest(%v)=%q, must not contain %q", tc.columns, got, tc.absent)
			}
		})
	}
}
