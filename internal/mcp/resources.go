package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	sourcesURI = "etl://sources"
	tablesURI  = "etl://tables"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		sourcesURI,
		"Configured Sources",
		mcp.WithMIMEType("application/json"),
	), s.handleSourcesResource)

	s.mcp.AddResource(mcp.NewResource(
		tablesURI,
		"Stored Tables",
		mcp.WithMIMEType("application/json"),
	), s.handleTablesResource)
}

func (s *Server) handleSourcesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(sourcesURI, s.pipeline.Sources())
}

func (s *Server) handleTablesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tables, err := s.pipeline.Tables(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(tablesURI, tables)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
