package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"etlpipe/internal/etl"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes a header and rows as aligned columns.
func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func printRunResult(opts *options, r *etl.RunResult) error {
	if opts.output == "json" {
		return printJSON(opts.stdout, r)
	}

	fmt.Fprintf(opts.stdout, "run %s: %s (%d/%d sources, %d rows read, %d rows written, %s)\n",
		r.ID, r.Status, len(r.Extracted), r.Sources, r.RowsRead, r.RowsWritten,
		r.Duration.Round(time.Millisecond))

	if len(r.Loads) > 0 {
		rows := make([][]string, len(r.Loads))
		for i, l := range r.Loads {
			status := "ok"
			if l.Error != "" {
				status = l.Error
			}
			rows[i] = []string{l.Table, l.Destination, fmt.Sprint(l.Rows), status}
		}
		if err := printTable(opts.stdout, []string{"TABLE", "DESTINATION", "ROWS", "STATUS"}, rows); err != nil {
			return err
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(opts.stdout, "  skipped: %s\n", e)
	}
	return nil
}

// formatCell renders a record value for table output.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
