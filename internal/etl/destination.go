package etl

import (
	"context"
	"log/slog"

	"etlpipe/internal/metrics"
)

// ── Destination ────────────────────────────────────────────
// A Destination persists tables into a target system.
// Every write replaces whatever the destination held under the table's name.
//
// Implementations: storage.TableStore (relational store), storage.CSVDir.

// Destination writes whole tables to a target system.
type Destination interface {
	// Name identifies the destination in logs and errors.
	Name() string

	// WriteTable replaces the named table with t and returns the rows written.
	WriteTable(ctx context.Context, t *Table) (int, error)
}

// LoadResult is the outcome of writing one table to one destination.
type LoadResult struct {
	Table       string `json:"table"`
	Destination string `json:"destination"`
	Rows        int    `json:"rows"`
	Error       string `json:"error,omitempty"`
}

// ── Loader ─────────────────────────────────────────────────

// Loader writes every table to each destination, best-effort.
type Loader struct {
	Destinations []Destination
	Log          *slog.Logger
}

// Load writes tables in name order. A failed write is reported as a
// *StoreError and the remaining tables still load.
func (l *Loader) Load(ctx context.Context, tables map[string]*Table) ([]LoadResult, []error) {
	var results []LoadResult
	var errs []error

	for _, name := range sortedKeys(tables) {
		t := tables[name]
		for _, dest := range l.Destinations {
			res := LoadResult{Table: name, Destination: dest.Name()}

			if err := ctx.Err(); err != nil {
				res.Error = err.Error()
				results = append(results, res)
				errs = append(errs, &StoreError{Table: name, Destination: dest.Name(), Err: err})
				continue
			}

			n, err := dest.WriteTable(ctx, t)
			if err != nil {
				metrics.TableWriteTotal.WithLabelValues(dest.Name(), "error").Inc()
				l.Log.Error("etl/load: table write failed", "table", name, "destination", dest.Name(), "error", err)
				res.Error = err.Error()
				results = append(results, res)
				errs = append(errs, &StoreError{Table: name, Destination: dest.Name(), Err: err})
				continue
			}

			metrics.TableWriteTotal.WithLabelValues(dest.Name(), "success").Inc()
			metrics.RowsWrittenTotal.WithLabelValues(dest.Name(), name).Add(float64(n))
			l.Log.Info("etl/load: table written", "table", name, "destination", dest.Name(), "rows", n)
			res.Rows = n
			results = append(results, res)
		}
	}
	return results, errs
}
