package query

import (
	"context"

	"chatdb/internal/storage"
)

// ConnReport summarizes the state of a connection and the executor's session.
type ConnReport struct {
	Backend  string
	Database string
	Targets  []string

	QueriesRun int
	Failures   int
	// LastError is the message of the most recent failed query, "" when the
	// session has no failures.
	LastError string
}

// Report gathers a connection summary: backend identity, visible targets,
// and session query statistics.
func (e *Executor) Report(ctx context.Context, conn *storage.Conn) (*ConnReport, error) {
	targets, err := conn.Repo().ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	rep := &ConnReport{
		Backend:  conn.Kind(),
		Database: conn.Database(),
		Targets:  targets,
	}

	e.hist.mu.Lock()
	rep.QueriesRun = len(e.hist.entries)
	for _, entry := range e.hist.entries {
		if !entry.Success {
			rep.Failures++
			rep.LastError = entry.ErrorMessage
		}
	}
	e.hist.mu.Unlock()

	return rep, nil
}
