package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"etlpipe/internal/domain"
	"etlpipe/internal/metrics"
)

// ── Run ────────────────────────────────────────────────────
// Orchestrates: extract → transform → load, one way, once.

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	ID          string           `json:"id"`
	Status      domain.RunStatus `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	Duration    time.Duration    `json:"duration"`
	Sources     int              `json:"sources"`
	Extracted   []string         `json:"extracted"`
	RowsRead    int              `json:"rowsRead"`
	RowsWritten int              `json:"rowsWritten"`
	Loads       []LoadResult     `json:"loads"`
	Errors      []string         `json:"errors,omitempty"`

	errs []error
}

// Err joins every error collected during the run, or returns nil.
func (r *RunResult) Err() error {
	return errors.Join(r.errs...)
}

// Log converts the result into a persisted run log.
func (r *RunResult) Log() *domain.RunLog {
	return &domain.RunLog{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.StartedAt.Add(r.Duration),
		Status:      r.Status,
		Sources:     r.Sources,
		Tables:      len(r.Extracted),
		RowsRead:    r.RowsRead,
		RowsWritten: r.RowsWritten,
		Error:       strings.Join(r.Errors, "; "),
	}
}

func (r *RunResult) addErrors(errs []error) {
	for _, err := range errs {
		r.errs = append(r.errs, err)
		r.Errors = append(r.Errors, err.Error())
	}
}

// RunRecorder persists run logs.
type RunRecorder interface {
	CreateRunLog(ctx context.Context, l *domain.RunLog) error
}

// ── Engine ─────────────────────────────────────────────────
// The Engine wires the three stages together.

// Engine runs the pipeline with the given stages.
type Engine struct {
	Extractor   *Extractor
	Transformer *Transformer
	Loader      *Loader
	History     RunRecorder // optional
	Log         *slog.Logger
}

// Run executes the pipeline end-to-end over srcs. Per-source and per-table
// failures are collected in the result; the run itself only stops early when
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context, srcs []domain.SourceDescriptor) *RunResult {
	start := time.Now()
	result := &RunResult{
		ID:        uuid.New().String(),
		StartedAt: start,
		Sources:   len(srcs),
	}
	log := e.Log.With("run", result.ID)
	log.Info("etl/run: starting", "sources", len(srcs))

	// 1. Extract.
	tables, errs := e.Extractor.Extract(ctx, srcs)
	result.addErrors(errs)
	for _, name := range sortedKeys(tables) {
		result.Extracted = append(result.Extracted, name)
		result.RowsRead += tables[name].Len()
	}

	// 2. Transform.
	tables, errs = e.Transformer.Transform(tables)
	result.addErrors(errs)

	// 3. Load.
	if len(tables) > 0 {
		loads, errs := e.Loader.Load(ctx, tables)
		result.addErrors(errs)
		result.Loads = loads
		for _, l := range loads {
			result.RowsWritten += l.Rows
		}
	}

	result.Duration = time.Since(start)
	switch {
	case len(srcs) > 0 && len(tables) == 0:
		result.Status = domain.RunError
	case len(result.errs) > 0:
		result.Status = domain.RunPartial
	default:
		result.Status = domain.RunSuccess
	}

	metrics.RunTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.RunDuration.Observe(result.Duration.Seconds())

	if e.History != nil {
		if err := e.History.CreateRunLog(ctx, result.Log()); err != nil {
			log.Warn("etl/run: failed to record run", "error", err)
		}
	}

	log.Info("etl/run: finished",
		"status", result.Status,
		"tables", len(result.Extracted),
		"rows_read", result.RowsRead,
		"rows_written", result.RowsWritten,
		"errors", len(result.errs),
		"duration", result.Duration)
	return result
}

// Preview extracts a single source and returns up to maxRows records,
// without transforming or loading anything.
func (e *Engine) Preview(ctx context.Context, src domain.SourceDescriptor, maxRows int) (*Table, error) {
	tables, errs := e.Extractor.Extract(ctx, []domain.SourceDescriptor{src})
	if len(errs) > 0 {
		return nil, errs[0]
	}
	t, ok := tables[src.Name]
	if !ok {
		return nil, fmt.Errorf("preview %s: %w", src.Name, ErrEmptyData)
	}
	if maxRows > 0 && t.Len() > maxRows {
		t.Records = t.Records[:maxRows]
	}
	return t, nil
}
