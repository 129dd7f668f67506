package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"chatdb/internal/analyze"
	"chatdb/internal/plan"
	"chatdb/internal/storage"
	"chatdb/internal/translate"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		target string
		format string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "analyze a record file and load it into the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			f, err := resolveFormat(format, path)
			if err != nil {
				return err
			}
			if target == "" {
				base := filepath.Base(path)
				target = strings.TrimSuffix(base, filepath.Ext(base))
			}

			rep, err := analyze.AnalyzeFile(path, f)
			if err != nil {
				return err
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}

			var sample map[string]any
			if len(rep.RawRecords) > 0 {
				sample = rep.RawRecords[0]
			}
			p, err := plan.Build(target, conn.Class(), rep.Profiles, sample)
			if err != nil {
				return err
			}

			res, err := a.eng.Run(cmd.Context(), conn, rep, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d records into %s (%d fields, %d indexes, %d views) in %s\n",
				res.RecordCount, res.Target, res.FieldCount, len(p.Indexes), len(p.Views),
				res.Elapsed.Truncate(1e6))
			if res.SkippedCount > 0 {
				fmt.Fprintf(out, "%d records were skipped because their insert batch failed\n", res.SkippedCount)
			}
			if res.WarningCount > 0 {
				fmt.Fprintf(out, "%d warnings\n", res.WarningCount)
				for _, w := range res.Warnings {
					fmt.Fprintf(out, "  %s\n", w)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "destination table/collection (default: file name)")
	cmd.Flags().StringVar(&format, "format", "auto", "input format: auto, csv, json")
	return cmd
}

func resolveFormat(flag, path string) (analyze.Format, error) {
	switch flag {
	case "csv":
		return analyze.FormatTabular, nil
	case "json":
		return analyze.FormatHierarchical, nil
	case "auto":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".tsv":
			return analyze.FormatTabular, nil
		case ".json":
			return analyze.FormatHierarchical, nil
		default:
			return "", fmt.Errorf("cannot infer format from %q, pass --format", path)
		}
	default:
		return "", fmt.Errorf("unknown format %q", flag)
	}
}

// newAnalyzeCmd previews the inferred schema without touching a backend.
func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		target   string
		format   string
		document bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "infer field types and print the planned schema without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			f, err := resolveFormat(format, path)
			if err != nil {
				return err
			}
			if target == "" {
				base := filepath.Base(path)
				target = strings.TrimSuffix(base, filepath.Ext(base))
			}

			rep, err := analyze.AnalyzeFile(path, f)
			if err != nil {
				return err
			}

			class := plan.Relational
			if document {
				class = plan.Document
			}
			var sample map[string]any
			if len(rep.RawRecords) > 0 {
				sample = rep.RawRecords[0]
			}
			p, err := plan.Build(target, class, rep.Profiles, sample)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d records, %d fields\n\n", path, rep.RecordCount, len(rep.Profiles))
			for _, fp := range rep.Profiles {
				fmt.Fprintf(out, "  %-24s %s", fp.Name, fp.SourceType)
				if fp.DateLayout != "" {
					fmt.Fprintf(out, " (layout %s)", fp.DateLayout)
				}
				if fp.Nullable {
					fmt.Fprint(out, " nullable")
				}
				fmt.Fprintf(out, "  distinct=%d", fp.DistinctCount)
				if len(fp.SampleValues) > 0 {
					fmt.Fprintf(out, "  e.g. %s", strings.Join(fp.SampleValues, ", "))
				}
				fmt.Fprintln(out)
			}

			fmt.Fprintf(out, "\nplanned indexes (%d):\n", len(p.Indexes))
			for _, idx := range p.Indexes {
				fmt.Fprintf(out, "  %s (%s)\n", idx.Name, strings.Join(idx.Fields, ", "))
			}
			if len(p.Views) > 0 {
				fmt.Fprintf(out, "planned views (%d):\n", len(p.Views))
				for _, v := range p.Views {
					fmt.Fprintf(out, "  %s\n", v.Name)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "destination name used in planned object names (default: file name)")
	cmd.Flags().StringVar(&format, "format", "auto", "input format: auto, csv, json")
	cmd.Flags().BoolVar(&document, "document", false, "plan for a document store instead of a relational backend")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		target    string
		dateField string
	)
	cmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "translate free text into a backend query and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}

			t := translate.Target{Name: target, DateField: dateField}
			res, err := a.exec.Run(cmd.Context(), conn, t, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Intent.Fallback {
				fmt.Fprintln(out, "no rule matched, showing a sample instead")
			}
			fmt.Fprintf(out, "-- %s\n", res.Query)
			printResultSet(cmd, res.Set)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "table/collection to query")
	cmd.Flags().StringVar(&dateField, "date-field", "", "date column for recent-window filters")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newSQLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement>",
		Short: "run a SELECT statement directly (relational backends only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			set, err := a.exec.RunSQL(cmd.Context(), conn, args[0])
			if err != nil {
				return err
			}
			printResultSet(cmd, set)
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "show queries executed this session, newest first",
		Long: `History is kept in process memory and starts empty on every invocation;
entries do not persist across runs. It is most useful when several queries run
in one process, such as through the query package's Executor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			entries := a.exec.History().Recent(limit)
			if len(entries) == 0 {
				fmt.Fprintln(out, "no queries executed in this session")
				return nil
			}
			for _, e := range entries {
				status := fmt.Sprintf("ok, %d records", e.ResultCount)
				if !e.Success {
					status = "failed: " + e.ErrorMessage
				}
				fmt.Fprintf(out, "%s  [%s/%s]  %s  (%s)\n",
					e.When.Format("2006-01-02 15:04:05"), e.Backend, e.Operation, e.Query, status)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum entries to show")
	return cmd
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "list tables or collections on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			targets, err := conn.Repo().ListTargets(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range targets {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newSampleCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sample <target>",
		Short: "show a few records from a table or collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			set, err := conn.Repo().SampleData(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printResultSet(cmd, set)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "records to show")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <target>",
		Short: "print starter queries for a table or collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			set, err := conn.Repo().SampleData(cmd.Context(), args[0], 1)
			if err != nil {
				return err
			}
			for _, s := range translate.Suggest(args[0], set.Columns) {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "summarize the connection and this session's queries",
		Long: `The query counters cover the current process only; like history they are
not persisted across invocations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := a.exec.Report(cmd.Context(), conn)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:  %s\n", rep.Backend)
			if rep.Database != "" {
				fmt.Fprintf(out, "database: %s\n", rep.Database)
			}
			fmt.Fprintf(out, "targets:  %s\n", strings.Join(rep.Targets, ", "))
			fmt.Fprintf(out, "queries:  %d run, %d failed\n", rep.QueriesRun, rep.Failures)
			if rep.LastError != "" {
				fmt.Fprintf(out, "last error: %s\n", rep.LastError)
			}
			return nil
		},
	}
}

// printResultSet writes a plain aligned listing: header row, then one line
// per record in column order.
func printResultSet(cmd *cobra.Command, set *storage.ResultSet) {
	out := cmd.OutOrStdout()
	if set == nil || len(set.Records) == 0 {
		fmt.Fprintln(out, "(no records)")
		return
	}

	fmt.Fprintln(out, strings.Join(set.Columns, "\t"))
	for _, rec := range set.Records {
		cells := make([]string, len(set.Columns))
		for i, c := range set.Columns {
			v, ok := rec[c]
			if !ok || v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(out, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(out, "(%d records)\n", len(set.Records))
}
