package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"etlpipe/internal/etl"
	"etlpipe/internal/service"
)

// defaultPreviewRows caps preview_source when maxRows is not given.
const defaultPreviewRows = 20

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Run the whole pipeline once: extract every source, apply the table rules, replace the tables in the store. Returns the run result."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunPipeline)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the sources configured for this pipeline"),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("list_access_methods",
		mcp.WithDescription("List the supported access methods with their required fields"),
	), s.handleListAccessMethods)

	s.mcp.AddTool(mcp.NewTool("list_tables",
		mcp.WithDescription("List the data tables in the store with their row counts"),
	), s.handleListTables)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Extract one source and return its first rows without transforming or storing anything"),
		mcp.WithString("source", mcp.Description("Source name"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Maximum rows to return (default 20)")),
	), s.handlePreviewSource)

	s.mcp.AddTool(mcp.NewTool("run_history",
		mcp.WithDescription("List recent pipeline runs, newest first (requires store history)"),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20)")),
	), s.handleRunHistory)
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.runs.RunOnce(ctx)
	if errors.Is(err, service.ErrAlreadyRunning) {
		return mcp.NewToolResultError("a pipeline run is already in progress, try again once it finishes"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.pipeline.Sources())
}

func (s *Server) handleListAccessMethods(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(etl.ListSources())
}

func (s *Server) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tables, err := s.pipeline.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return jsonResult(tables)
}

// previewResult is the JSON shape returned by preview_source.
type previewResult struct {
	Source  string           `json:"source"`
	Columns []etl.Field      `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("source", "")
	if name == "" {
		return nil, fmt.Errorf("source is required")
	}
	maxRows := req.GetInt("maxRows", defaultPreviewRows)

	t, err := s.pipeline.Preview(ctx, name, maxRows)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", name, err)
	}

	rows := make([]map[string]any, len(t.Records))
	for i, r := range t.Records {
		rows[i] = r.Data
	}
	return jsonResult(previewResult{Source: name, Columns: t.Schema.Fields, Rows: rows})
}

func (s *Server) handleRunHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logs, err := s.pipeline.History(ctx, req.GetInt("limit", 20))
	if err != nil {
		return nil, fmt.Errorf("run history: %w", err)
	}
	return jsonResult(logs)
}
