// Package query executes translated queries against a live connection, guards
// the relational path with a destructive-keyword denylist, and records an
// in-memory history of everything that actually reached a backend.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// destructiveKeywords are rejected anywhere in SQL text after comment
// stripping. The match is word-bounded so column names like "created_at" or
// "last_update" pass.
var destructiveKeywords = []string{
	"drop", "delete", "truncate", "alter", "create", "insert", "update",
}

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// quotedRe matches double-quoted and bracket-quoted identifiers and
	// single-quoted string literals. A denied word inside one names data,
	// not an operation.
	quotedRe = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]|'[^']*'`)
	denyRe   = regexp.MustCompile(`\b(` + strings.Join(destructiveKeywords, "|") + `)\b`)
)

// ValidationError reports SQL that failed the denylist check. Rejected text
// is never sent to a backend and never appears in history.
type ValidationError struct {
	Query string
	// Keyword is the denied keyword, or "" when the statement does not start
	// with SELECT.
	Keyword string
}

func (e *ValidationError) Error() string {
	if e.Keyword == "" {
		return "query: only SELECT statements are allowed"
	}
	return fmt.Sprintf("query: destructive keyword %q is not allowed", e.Keyword)
}

// StripComments removes line ("-- ...") and block ("/* ... */") comments so
// a denied keyword cannot hide inside one.
func StripComments(sql string) string {
	out := blockCommentRe.ReplaceAllString(sql, " ")
	out = lineCommentRe.ReplaceAllString(out, " ")
	return out
}

// ValidateSQL enforces the read-only contract: after comment stripping the
// statement must start with SELECT and must not contain any destructive
// keyword, including in subqueries or after statement separators. Quoted
// identifiers and string literals are excluded from the keyword scan, so a
// column legitimately named "update" passes once the renderer quotes it.
//
// Errors:
//   - *ValidationError describing the first violation found.
func ValidateSQL(sql string) error {
	text := strings.ToLower(strings.TrimSpace(StripComments(sql)))
	if !strings.HasPrefix(text, "select") {
		return &ValidationError{Query: sql}
	}
	if m := denyRe.FindString(quotedRe.ReplaceAllString(text, " ")); m != "" {
		return &ValidationError{Query: sql, Keyword: m}
	}
	return nil
}
