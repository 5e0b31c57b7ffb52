package etl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"etlpipe/internal/domain"
	"etlpipe/internal/metrics"
)

// ── Extractor ──────────────────────────────────────────────
// Fetches every configured source, best-effort: a failing source is logged
// and left out of the result, the remaining sources still run.

// Extractor dispatches each source descriptor to its registered Source.
type Extractor struct {
	Env *Env
	Log *slog.Logger

	// Lookup resolves an access method; nil uses the global registry.
	Lookup func(domain.AccessMethod) (Source, error)
}

// Extract runs every source in order and returns the tables keyed by source
// name, plus one *SourceError per skipped source.
func (x *Extractor) Extract(ctx context.Context, srcs []domain.SourceDescriptor) (map[string]*Table, []error) {
	tables := make(map[string]*Table, len(srcs))
	var errs []error

	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &SourceError{Source: src.Name, Method: src.Method, Err: err})
			continue
		}

		x.Log.Info("etl/extract: fetching source", "source", src.Name, "method", src.Method)
		start := time.Now()
		t, err := x.extractOne(ctx, src)
		metrics.SourceExtractDuration.WithLabelValues(string(src.Method)).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SourceExtractTotal.WithLabelValues(string(src.Method), "error").Inc()
			serr := &SourceError{Source: src.Name, Method: src.Method, Err: err}
			x.Log.Error("etl/extract: skipping source", "source", src.Name, "error", err)
			errs = append(errs, serr)
			continue
		}

		metrics.SourceExtractTotal.WithLabelValues(string(src.Method), "success").Inc()
		metrics.RowsExtractedTotal.WithLabelValues(src.Name).Add(float64(t.Len()))
		x.Log.Info("etl/extract: fetched source", "source", src.Name,
			"rows", t.Len(), "columns", len(t.Schema.Fields), "duration", time.Since(start))
		tables[src.Name] = t
	}

	return tables, errs
}

func (x *Extractor) extractOne(ctx context.Context, src domain.SourceDescriptor) (*Table, error) {
	lookup := x.Lookup
	if lookup == nil {
		lookup = GetSource
	}
	source, err := lookup(src.Method)
	if err != nil {
		return nil, err
	}
	t, err := source.Extract(ctx, src, x.Env)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("source returned no table")
	}
	t.Name = src.Name
	return t, nil
}
