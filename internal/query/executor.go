package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"chatdb/internal/metrics"
	"chatdb/internal/storage"
	"chatdb/internal/translate"
)

// ExecutionError reports a query that passed validation but failed at the
// backend. Failed executions are still recorded in history.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query: execute %q: %v", e.Query, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result is the outcome of one translated run.
type Result struct {
	// Intent is the parsed grammar outcome.
	Intent translate.Intent
	// Query is the rendered backend-native text that was executed.
	Query string
	// Set holds the normalized records.
	Set *storage.ResultSet
}

// Executor turns free text into backend queries and runs them. One Executor
// serves any number of connections.
type Executor struct {
	log  *zap.Logger
	met  metrics.Backend
	hist *History
}

func NewExecutor(log *zap.Logger, met metrics.Backend) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if met == nil {
		met = metrics.Nop{}
	}
	return &Executor{log: log, met: met, hist: NewHistory()}
}

// History exposes the executor's query log.
func (e *Executor) History() *History { return e.hist }

// Run parses text, renders it for the connection's backend, and executes it.
//
// Errors:
//   - *translate.TranslationError when text is empty; nothing is recorded.
//   - *ValidationError when the rendered SQL fails the denylist; nothing is
//     sent to the backend and nothing is recorded.
//   - *ExecutionError when the backend rejects the query; the failure is
//     recorded in history.
func (e *Executor) Run(ctx context.Context, conn *storage.Conn, target translate.Target, text string) (*Result, error) {
	in, err := translate.Parse(text)
	if err != nil {
		return nil, err
	}
	if in.Fallback {
		e.log.Info("no grammar rule matched, falling back to select-all",
			zap.String("text", text))
	}

	var (
		rendered string
		set      *storage.ResultSet
		runErr   error
	)

	start := time.Now()
	if doc, ok := conn.Repo().(storage.DocumentStore); ok {
		pipeline := translate.RenderPipeline(in, target)
		rendered = pipelineString(pipeline)
		set, runErr = doc.Aggregate(ctx, target.Name, pipeline)
	} else {
		rel, ok := conn.Repo().(storage.Relational)
		if !ok {
			return nil, fmt.Errorf("query: backend %q supports neither SQL nor pipelines", conn.Kind())
		}
		rendered = translate.RenderSQL(in, target, translate.DialectFor(conn.Kind()))
		if err := ValidateSQL(rendered); err != nil {
			return nil, err
		}
		set, runErr = rel.Query(ctx, rendered)
	}
	elapsed := time.Since(start)

	e.record(conn.Kind(), string(in.Operation), rendered, set, runErr, elapsed)
	if runErr != nil {
		return nil, &ExecutionError{Query: rendered, Err: runErr}
	}
	return &Result{Intent: in, Query: rendered, Set: set}, nil
}

// RunSQL validates and executes caller-supplied SQL on a relational
// connection. The same denylist applies as for translated queries.
func (e *Executor) RunSQL(ctx context.Context, conn *storage.Conn, sql string) (*storage.ResultSet, error) {
	rel, ok := conn.Repo().(storage.Relational)
	if !ok {
		return nil, fmt.Errorf("query: backend %q does not accept SQL", conn.Kind())
	}
	if err := ValidateSQL(sql); err != nil {
		return nil, err
	}

	start := time.Now()
	set, runErr := rel.Query(ctx, sql)
	elapsed := time.Since(start)

	e.record(conn.Kind(), "sql", sql, set, runErr, elapsed)
	if runErr != nil {
		return nil, &ExecutionError{Query: sql, Err: runErr}
	}
	return set, nil
}

func (e *Executor) record(backend, op, rendered string, set *storage.ResultSet, runErr error, elapsed time.Duration) {
	entry := Entry{
		Query:     rendered,
		Backend:   backend,
		Operation: op,
		When:      time.Now().UTC(),
		Success:   runErr == nil,
	}
	status := "ok"
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
		status = "error"
		e.log.Warn("query failed",
			zap.String("backend", backend),
			zap.String("op", op),
			zap.Error(runErr))
	} else {
		entry.ResultCount = len(set.Records)
		e.log.Info("query executed",
			zap.String("backend", backend),
			zap.String("op", op),
			zap.Int("records", entry.ResultCount),
			zap.Duration("elapsed", elapsed))
	}
	e.hist.Append(entry)

	e.met.IncCounter("chatdb.query.total", 1, "backend:"+backend, "op:"+op, "status:"+status)
	e.met.ObserveMS("chatdb.query.duration_ms", float64(elapsed)/float64(time.Millisecond), "backend:"+backend)
}

// pipelineString renders a pipeline as one extended-JSON array for history
// and logs.
func pipelineString(pipeline []bson.D) string {
	parts := make([]string, 0, len(pipeline))
	for _, stage := range pipeline {
		b, err := bson.MarshalExtJSON(stage, false, false)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%v", stage))
			continue
		}
		parts = append(parts, string(b))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
