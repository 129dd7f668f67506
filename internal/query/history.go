package query

import (
	"sync"
	"time"
)

// defaultHistoryLimit is how many entries Recent returns when the caller does
// not ask for a specific count.
const defaultHistoryLimit = 10

// Entry is one executed query. Only queries that reached a backend are
// recorded; denylist rejections and unparseable input never appear here.
type Entry struct {
	// Query is the rendered backend-native text: SQL for relational
	// backends, the extended-JSON pipeline for the document store.
	Query string
	// Backend is the connection kind the query ran against.
	Backend string
	// Operation is the matched grammar rule, or "sql" for direct SQL.
	Operation string

	When         time.Time
	Success      bool
	ErrorMessage string
	ResultCount  int
}

// History is an in-memory, most-recent-first query log. It lives and dies
// with its Executor's process; nothing is persisted. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []Entry
}

func NewHistory() *History { return &History{} }

// Append records one executed query.
func (h *History) Append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

// Recent returns up to limit entries, newest first. limit <= 0 means the
// default of 10.
func (h *History) Recent(limit int) []Entry {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// Len reports the total number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
