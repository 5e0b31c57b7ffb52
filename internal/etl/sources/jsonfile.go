package sources

import (
	"context"
	"fmt"
	"os"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads records from a local JSON file.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessJSONFile,
		Label:    "JSON File",
		Required: []string{"location"},
		Help:     "location is the path to the file; dataPath is a dot-separated path to the array. Leave empty if root is an array.",
	}
}

func (s *jsonFileSource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	f, err := os.Open(src.Location)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return parseJSON(f, src.Name, src.DataPath)
}
