package storage

import (
	"database/sql"
	"time"
)

// ScanRows normalizes a database/sql result into a ResultSet. Byte slices
// become strings so records marshal cleanly.
func ScanRows(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &ResultSet{Columns: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = normalizeValue(raw[i])
		}
		out.Records = append(out.Records, rec)
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t
	default:
		return v
	}
}
