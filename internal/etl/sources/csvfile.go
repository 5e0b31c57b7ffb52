package sources

import (
	"context"
	"fmt"
	"os"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local delimited file.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessCSVFile,
		Label:    "CSV File",
		Required: []string{"location"},
		Help:     "location is the path to the file; delimiter defaults to comma",
	}
}

func (s *csvFileSource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	f, err := os.Open(src.Location)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return etl.ParseCSV(f, src.Name, src.Comma())
}
