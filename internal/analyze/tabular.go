package analyze

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// readTabular reads a delimited file in full. The first record names the
// fields; records with a mismatched field count are skipped rather than
// failing the whole analysis.
func readTabular(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // validated manually so bad rows can be skipped
	r.LazyQuotes = true

	headers, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, fmt.Errorf("empty file")
		}
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for i := range headers {
		h := strings.TrimSpace(headers[i])
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers[i] = h
	}

	rows := make([][]string, 0, 1024)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line inside the file: skip, keep reading.
			continue
		}
		if len(rec) != len(headers) {
			continue
		}
		row := make([]string, len(rec))
		for i := range rec {
			row[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}
