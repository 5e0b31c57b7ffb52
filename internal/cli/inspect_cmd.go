package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"etlpipe/internal/etl"
	mcpserver "etlpipe/internal/mcp"
)

func newTablesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables [config]",
		Short: "List the tables in the store with their row counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(opts.configPathFrom(args))
			if err != nil {
				return err
			}
			tables, err := a.Tables(cmd.Context())
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(opts.stdout, tables)
			}
			rows := make([][]string, len(tables))
			for i, t := range tables {
				rows[i] = []string{t.Name, fmt.Sprint(t.Rows)}
			}
			return printTable(opts.stdout, []string{"TABLE", "ROWS"}, rows)
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [config]",
		Short: "Show recent pipeline runs (requires store.history)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(opts.configPathFrom(args))
			if err != nil {
				return err
			}
			logs, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(opts.stdout, logs)
			}
			rows := make([][]string, len(logs))
			for i, l := range logs {
				rows[i] = []string{
					l.ID,
					l.StartedAt.Local().Format(time.DateTime),
					string(l.Status),
					fmt.Sprintf("%d/%d", l.Tables, l.Sources),
					fmt.Sprint(l.RowsWritten),
					l.Error,
				}
			}
			return printTable(opts.stdout, []string{"ID", "STARTED", "STATUS", "TABLES", "ROWS", "ERROR"}, rows)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func newPreviewCmd(opts *options) *cobra.Command {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "preview <source> [config]",
		Short: "Extract one source and print its first rows without storing anything",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(opts.configPathFrom(args[1:]))
			if err != nil {
				return err
			}
			t, err := a.Preview(cmd.Context(), args[0], maxRows)
			if err != nil {
				return err
			}
			return printPreview(opts, t)
		},
	}
	cmd.Flags().IntVarP(&maxRows, "rows", "n", 10, "Maximum rows to print")
	return cmd
}

func printPreview(opts *options, t *etl.Table) error {
	if opts.output == "json" {
		return printJSON(opts.stdout, t)
	}
	cols := t.Columns()
	rows := make([][]string, len(t.Records))
	for i, r := range t.Records {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = formatCell(r.Data[c])
		}
		rows[i] = row
	}
	return printTable(opts.stdout, cols, rows)
}

func newSourcesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the supported access methods and their required fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := etl.ListSources()
			if opts.output == "json" {
				return printJSON(opts.stdout, specs)
			}
			rows := make([][]string, len(specs))
			for i, s := range specs {
				rows[i] = []string{string(s.Method), s.Label, fmt.Sprint(s.Required)}
			}
			return printTable(opts.stdout, []string{"METHOD", "LABEL", "REQUIRED"}, rows)
		},
	}
}

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp [config]",
		Short: "Serve the pipeline as an MCP server on stdin/stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.loadApp(opts.configPathFrom(args))
			if err != nil {
				return err
			}
			return mcpserver.New(a, version, opts.log).ServeStdio()
		},
	}
}
