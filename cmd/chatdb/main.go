// chatdb imports record files into a relational or document backend and runs
// free-text analytics queries against the result.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chatdb/internal/config"
	"chatdb/internal/importer"
	"chatdb/internal/metrics"
	"chatdb/internal/metrics/datadog"
	"chatdb/internal/query"
	"chatdb/internal/storage"

	// register all backends with the storage factory; config selects which
	// one a given run uses.
	_ "chatdb/internal/storage/all"
)

// app carries the wired runtime shared by all subcommands. It is built once
// in the root PersistentPreRunE and torn down after Execute returns.
type app struct {
	cfgPath  string
	backend  string
	dsn      string
	database string

	cfg  *config.Config
	log  *zap.Logger
	met  metrics.Backend
	mgr  *storage.Manager
	exec *query.Executor
	eng  *importer.Engine
}

// setup resolves configuration (flags beat environment beats file), then
// builds the logger, metrics backend, executor, and import engine. No
// backend connection is made here; commands connect on demand.
func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Storage.Kind = a.backend
	}
	if a.dsn != "" {
		cfg.Storage.DSN = a.dsn
	}
	if a.database != "" {
		cfg.Storage.Database = a.database
	}
	a.cfg = cfg

	a.log, err = newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	a.met = metrics.Nop{}
	if cfg.Metrics.Enabled {
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    cfg.Metrics.JobName,
			Tags:       datadog.ParseTagsCSV(cfg.Metrics.Tags),
			FlushEvery: time.Duration(cfg.Metrics.FlushSeconds) * time.Second,
		})
		if err != nil {
			a.log.Warn("metrics backend init failed, telemetry disabled", zap.Error(err))
		} else {
			a.met = b
		}
	}

	a.mgr = storage.NewManager()
	a.exec = query.NewExecutor(a.log, a.met)
	a.eng = importer.NewEngine(a.log, a.met)
	a.eng.SetBatchSize(cfg.Import.BatchSize)
	return nil
}

// connect opens the configured backend. The manager disposes any previous
// connection first, so repeated calls are safe.
func (a *app) connect(ctx context.Context) (*storage.Conn, error) {
	return a.mgr.Connect(ctx, storage.Config{
		Kind:     a.cfg.Storage.Kind,
		DSN:      a.cfg.Storage.DSN,
		Database: a.cfg.Storage.Database,
	})
}

func (a *app) teardown() {
	if a.mgr != nil {
		a.mgr.Disconnect()
	}
	if a.met != nil {
		if err := a.met.Close(); err != nil && a.log != nil {
			a.log.Warn("metrics close", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newLogger(c config.Logging) (*zap.Logger, error) {
	var zc zap.Config
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatdb",
		Short: "file-to-database import and free-text analytics queries",
		Long: `chatdb analyzes CSV and JSON record files, plans a schema with
indexes and daily/monthly rollup views, imports the records into a relational
or document backend, and answers short free-text questions by translating
them into SQL or aggregation pipelines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "YAML config path (optional)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "backend kind: postgres, sqlite, mssql, mongodb")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "backend connection string")
	root.PersistentFlags().StringVar(&a.database, "database", "", "document-store database name")

	root.AddCommand(
		newAnalyzeCmd(a),
		newImportCmd(a),
		newQueryCmd(a),
		newSQLCmd(a),
		newHistoryCmd(a),
		newTablesCmd(a),
		newSampleCmd(a),
		newSuggestCmd(a),
		newReportCmd(a),
	)
	return root
}

func main() {
	a := &app{}
	root := newRootCmd(a)
	err := root.Execute()
	a.teardown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatdb: %v\n", err)
		os.Exit(1)
	}
}
