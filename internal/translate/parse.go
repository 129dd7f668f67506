package translate

import (
	"strconv"
	"strings"
)

// aggFuncs are the recognized aggregation function tokens.
var aggFuncs = []string{"sum", "avg", "min", "max", "count"}

// fillerWords are skipped when extracting the token after a keyword.
var fillerWords = map[string]bool{
	"of": true, "the": true, "a": true, "an": true, "with": true,
}

// Parse matches raw against the rule list, first match wins.
//
// Errors:
//   - *TranslationError when raw is empty or whitespace.
//
// Any non-empty text yields an Intent; text matching no rule yields the
// selectAll fallback with Fallback set.
func Parse(raw string) (Intent, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return Intent{}, &TranslationError{Raw: raw}
	}
	tokens := tokenize(text)

	if idx := indexOf(tokens, "join"); idx >= 0 {
		return parseJoin(tokens, idx), nil
	}
	if hasPhrase(tokens, "group", "by") {
		return parseGroupBy(tokens), nil
	}
	if indexOf(tokens, "rank") >= 0 {
		return parseRank(tokens), nil
	}
	if hasPhrase(tokens, "moving", "average") {
		return parseMovingAverage(tokens), nil
	}
	if n, unit, ok := parseRecentWindow(tokens); ok {
		return Intent{Operation: OpFilterRecent, WindowN: n, WindowUnit: unit}, nil
	}
	if indexOf(tokens, "count") >= 0 {
		return Intent{Operation: OpCount}, nil
	}

	return Intent{Operation: OpSelectAll, Fallback: true}, nil
}

func tokenize(text string) []string {
	// Strip punctuation that commonly clings to tokens, keep identifiers
	// (letters, digits, underscore, dot) intact.
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '.':
			return r
		default:
			return ' '
		}
	}, text)
	return strings.Fields(clean)
}

func indexOf(tokens []string, word string) int {
	for i, t := range tokens {
		if t == word {
			return i
		}
	}
	return -1
}

// hasPhrase reports whether first is immediately followed by second.
func hasPhrase(tokens []string, first, second string) bool {
	for i := 0; i < len(tokens)-1; i++ {
		if tokens[i] == first && tokens[i+1] == second {
			return true
		}
	}
	return false
}

// tokenAfter returns the first non-filler token after position idx.
func tokenAfter(tokens []string, idx int) string {
	for i := idx + 1; i < len(tokens); i++ {
		if !fillerWords[tokens[i]] {
			return tokens[i]
		}
	}
	return ""
}

func parseJoin(tokens []string, joinIdx int) Intent {
	in := Intent{Operation: OpJoin, JoinKind: JoinInner}

	if joinIdx > 0 {
		switch tokens[joinIdx-1] {
		case "left":
			in.JoinKind = JoinLeft
		case "right":
			in.JoinKind = JoinRight
		case "outer", "full":
			in.JoinKind = JoinOuter
		}
	}

	in.JoinTarget = tokenAfter(tokens, joinIdx)
	if onIdx := indexOf(tokens, "on"); onIdx >= 0 {
		in.JoinField = tokenAfter(tokens, onIdx)
	}
	return in
}

func parseGroupBy(tokens []string) Intent {
	in := Intent{Operation: OpGroupByAggregate, AggFunc: "count"}

	// Known fragility, kept on purpose: this scans for the first "by", the
	// same word the partition rule uses.
	if byIdx := indexOf(tokens, "by"); byIdx >= 0 {
		in.GroupField = tokenAfter(tokens, byIdx)
	}

	for _, fn := range aggFuncs {
		idx := indexOf(tokens, fn)
		if idx < 0 {
			continue
		}
		in.AggFunc = fn
		if fn != "count" {
			in.AggField = tokenAfter(tokens, idx)
		}
		break
	}
	return in
}

func parseRank(tokens []string) Intent {
	in := Intent{Operation: OpRank}
	if rankIdx := indexOf(tokens, "rank"); rankIdx > 0 && tokens[rankIdx-1] == "dense" {
		in.DenseRank = true
	}

	if byIdx := indexOf(tokens, "by"); byIdx >= 0 {
		in.SortField = tokenAfter(tokens, byIdx)
	}
	if pIdx := indexOf(tokens, "partition"); pIdx >= 0 {
		// "partition by <field>"
		if pIdx+1 < len(tokens) && tokens[pIdx+1] == "by" {
			in.PartitionField = tokenAfter(tokens, pIdx+1)
		}
	}
	return in
}

func parseMovingAverage(tokens []string) Intent {
	in := Intent{Operation: OpMovingAverage, WindowSize: 3}

	if avgIdx := indexOf(tokens, "average"); avgIdx >= 0 {
		field := tokenAfter(tokens, avgIdx)
		if field != "window" {
			in.AvgField = field
		}
	}
	if wIdx := indexOf(tokens, "window"); wIdx >= 0 {
		if n, err := strconv.Atoi(tokenAfter(tokens, wIdx)); err == nil && n > 0 {
			in.WindowSize = n
		}
	}
	return in
}

// parseRecentWindow matches "last N days/months/years".
func parseRecentWindow(tokens []string) (int, string, bool) {
	lastIdx := indexOf(tokens, "last")
	if lastIdx < 0 || lastIdx+2 >= len(tokens) {
		return 0, "", false
	}

	n, err := strconv.Atoi(tokens[lastIdx+1])
	if err != nil || n <= 0 {
		return 0, "", false
	}
	unit := strings.TrimSuffix(tokens[lastIdx+2], "s")
	switch unit {
	case "day", "month", "year":
		return n, unit, true
	default:
		return 0, "", false
	}
}
