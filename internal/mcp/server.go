package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
	"etlpipe/internal/service"
)

// Pipeline is what the MCP server needs from the application layer.
type Pipeline interface {
	Run(ctx context.Context) (*etl.RunResult, error)
	Sources() []domain.SourceDescriptor
	Preview(ctx context.Context, source string, maxRows int) (*etl.Table, error)
	Tables(ctx context.Context) ([]TableInfo, error)
	History(ctx context.Context, limit int) ([]domain.RunLog, error)
}

// TableInfo describes one data table in the store.
type TableInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// Server is the MCP server for the pipeline.
// It exposes tools and resources so AI agents can inspect and run it.
type Server struct {
	mcp      *server.MCPServer
	pipeline Pipeline
	runs     *service.PipelineService // one run_pipeline at a time
	log      *slog.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(pipeline Pipeline, version string, log *slog.Logger) *Server {
	s := &Server{pipeline: pipeline, log: log}
	s.runs = service.NewPipelineService("mcp/run_pipeline", pipeline.Run, &service.LogEmitter{Log: log}, log)

	s.mcp = server.NewMCPServer(
		"etlpipe",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
	)

	s.registerPipelineTools()
	s.registerResources()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func boolPtr(v bool) *bool { return &v }
