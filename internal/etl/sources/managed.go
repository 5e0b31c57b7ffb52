package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── managed_dataset ─────────────────────────────────────────
// Delegates the download to the Kaggle CLI (credentials come from its own
// environment), then parses the named file from the download directory.

type managedDatasetSource struct{}

func init() { etl.RegisterSource(&managedDatasetSource{}) }

func (s *managedDatasetSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessManagedDataset,
		Label:    "Managed dataset (Kaggle CLI)",
		Required: []string{"location", "fileName"},
		Help:     "location is the dataset id (owner/name); fileName is the file to parse after download",
	}
}

func (s *managedDatasetSource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	if src.FileName == "" {
		return nil, fmt.Errorf("fileName is required")
	}
	if env.Runner == nil {
		return nil, fmt.Errorf("no command runner configured")
	}

	if err := os.MkdirAll(env.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	args := DownloadArgs(src.Location, env.DownloadDir)
	out, err := env.Runner.Run(ctx, env.KaggleBin, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		return nil, fmt.Errorf("%s %s: %w: %s", env.KaggleBin, strings.Join(args, " "), err, msg)
	}

	path := filepath.Join(env.DownloadDir, src.FileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open downloaded file: %w", err)
	}
	defer f.Close()

	return etl.ParseCSV(f, src.Name, src.Comma())
}

// DownloadArgs returns the CLI arguments that download and unzip dataset into dir.
func DownloadArgs(dataset, dir string) []string {
	return []string{"datasets", "download", "-d", dataset, "-p", dir, "--unzip"}
}
