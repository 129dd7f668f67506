package translate

import (
	"fmt"
	"strings"
)

// Suggest returns starter phrases for a target, derived from its column
// names. Every phrase parses under the grammar, so suggestions double as
// documentation of what the translator understands.
func Suggest(target string, columns []string) []string {
	out := []string{
		fmt.Sprintf("count records in %s", target),
		fmt.Sprintf("show all %s", target),
	}

	var dateCol, numCol, groupCol string
	for _, c := range columns {
		lower := strings.ToLower(c)
		switch {
		case dateCol == "" && strings.Contains(lower, "date"):
			dateCol = c
		case numCol == "" && (strings.Contains(lower, "amount") ||
			strings.Contains(lower, "price") || strings.Contains(lower, "total") ||
			strings.Contains(lower, "qty") || strings.Contains(lower, "count")):
			numCol = c
		case groupCol == "" && (strings.Contains(lower, "category") ||
			strings.Contains(lower, "type") || strings.Contains(lower, "status") ||
			strings.Contains(lower, "region")):
			groupCol = c
		}
	}

	if dateCol != "" {
		out = append(out, fmt.Sprintf("show %s from the last 30 days", target))
	}
	if numCol != "" && groupCol != "" {
		out = append(out, fmt.Sprintf("sum %s group by %s", numCol, groupCol))
	}
	if groupCol != "" {
		out = append(out, fmt.Sprintf("count group by %s", groupCol))
	}
	if numCol != "" {
		out = append(out, fmt.Sprintf("moving average of %s window 3", numCol))
		out = append(out, fmt.Sprintf("rank by %s", numCol))
	}
	return out
}
