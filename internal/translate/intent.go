// Package translate turns short free-text phrases into backend-native
// queries. Parsing is a small tokenizer plus an ordered rule list producing a
// backend-agnostic Intent; rendering emits SQL text for relational dialects
// or aggregation-pipeline stages for the document store.
//
// The rule order is part of the contract: join > group by > rank > moving
// average > recent window > count > select-all fallback. Several rules scan
// for the word "by", so a phrase carrying both "group by" and "partition by"
// resolves by rule precedence, not by position.
package translate

import "fmt"

// Operation identifies the matched grammar rule.
type Operation string

const (
	OpSelectAll        Operation = "selectAll"
	OpCount            Operation = "count"
	OpFilterRecent     Operation = "filterRecent"
	OpGroupByAggregate Operation = "groupByAggregate"
	OpJoin             Operation = "join"
	OpRank             Operation = "rank"
	OpMovingAverage    Operation = "movingAverage"
)

// JoinKind selects the SQL join flavor; the document path always renders
// $lookup + $unwind.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
	JoinOuter JoinKind = "outer"
)

// Intent is the backend-agnostic outcome of parsing one phrase.
// It is short-lived: parse, render, discard.
type Intent struct {
	Operation Operation

	// Fallback marks that no rule matched and Operation degraded to
	// selectAll.
	Fallback bool

	// join
	JoinTarget string
	JoinField  string
	JoinKind   JoinKind

	// group by
	GroupField string
	AggFunc    string // sum | avg | min | max | count
	AggField   string

	// rank
	SortField      string
	PartitionField string
	DenseRank      bool

	// moving average
	AvgField   string
	WindowSize int

	// recent window
	WindowN    int
	WindowUnit string // day | month | year
}

// Target carries the context the renderers need about the queried
// table/collection.
type Target struct {
	// Name is the table or collection to query.
	Name string
	// DateField is the column used by recent-window filters. Empty falls
	// back to "date".
	DateField string
	// PrimaryKey orders window operations. Empty falls back to "id" on the
	// relational path and "_id" on the document path.
	PrimaryKey string
}

// TranslationError reports input that cannot produce any intent at all
// (empty text). Weak matches never error; they degrade to the select-all
// fallback instead.
type TranslationError struct {
	Raw string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate: no query text in %q", e.Raw)
}
