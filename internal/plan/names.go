package plan

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxIdentLen matches the tightest identifier limit among supported engines
// (Postgres truncates at 63 bytes).
const maxIdentLen = 63

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeName converts an arbitrary field or target name into a safe
// lowercase identifier:
//   - diacritics are folded away ("café" -> "cafe")
//   - every non-alphanumeric rune becomes an underscore, runs preserved
//   - a digit-leading result is prefixed with "f_"
//   - the result is truncated to the engine identifier limit
func SanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "f_" + out
	}
	return truncateIdent(out)
}

// truncateIdent cuts on a UTF-8 boundary; sanitized names are ASCII today but
// the guard is kept in case the rune filter ever widens.
func truncateIdent(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	b := []byte(s)
	cut := maxIdentLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxIdentLen]
	}
	return string(b[:cut])
}

// Generated object names. These are part of the external contract: existing
// destinations are recognized and replaced by name, so the scheme must stay
// stable.

func SingleIndexName(field string) string { return "idx_" + field }

func SelectivityIndexName(field string) string { return "idx_sel_" + field }

func AnalyticsIndexName(dateField, numField string) string {
	return "idx_analytics_" + dateField + "_" + numField
}

func TextIndexName(field string) string { return "idx_text_" + field }

func DailyViewName(target string) string { return "v_" + target + "_daily" }

func MonthlyViewName(target string) string { return "v_" + target + "_monthly" }
