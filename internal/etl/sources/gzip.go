package sources

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── gzip_csv ────────────────────────────────────────────────
// One GET; the body is a gzip stream wrapping delimited text.

type gzipCSVSource struct{}

func init() { etl.RegisterSource(&gzipCSVSource{}) }

func (s *gzipCSVSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessGzipCSV,
		Label:    "Gzip CSV over HTTP",
		Required: []string{"location"},
		Help:     "location is the URL of a gzip-compressed delimited text file",
	}
}

func (s *gzipCSVSource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	return fetch(ctx, env, src.Location, func(r io.Reader) (*etl.Table, error) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		return etl.ParseCSV(zr, src.Name, src.Comma())
	})
}
