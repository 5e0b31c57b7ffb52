package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/config"
	"etlpipe/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "sources.json", `{
  "sources": [
    {"name": "sales", "method": "direct_csv", "location": "https://example.com/sales.csv"},
    {"name": "weather", "method": "gzip_csv", "location": "https://example.com/w.csv.gz", "delimiter": ";"},
    {"name": "titanic", "method": "managed_dataset", "location": "owner/titanic", "fileName": "train.csv"}
  ],
  "rules": {"sales": [{"type": "median_fill", "config": {"fields": ["amount"]}}]},
  "store": {"driver": "sqlite", "path": "out/etl.db"},
  "httpTimeout": "90s"
}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, path, cfg.Path)
	require.Len(t, cfg.Sources, 3)
	require.Equal(t, domain.AccessGzipCSV, cfg.Sources[1].Method)
	require.Equal(t, ';', cfg.Sources[1].Comma())
	require.Equal(t, "train.csv", cfg.Sources[2].FileName)
	require.Equal(t, 90*time.Second, cfg.Timeout())
	require.Len(t, cfg.Rules["sales"], 1)
	require.Equal(t, domain.RuleMedianFill, cfg.Rules["sales"][0].Type)

	src, ok := cfg.Source("titanic")
	require.True(t, ok)
	require.Equal(t, "owner/titanic", src.Location)
	_, ok = cfg.Source("missing")
	require.False(t, ok)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", `
sources:
  - name: users
    method: json_api
    location: https://example.com/users
    dataPath: data.items
  - name: local
    method: csv_file
    location: ./data/local.csv
rules:
  users:
    - type: date_range
      config:
        field: created
        start: 2020-01-01
        end: 2020-12-31
store:
  driver: duckdb
  path: out/etl.duckdb
  history: true
httpTimeout: 2m
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)
	require.Equal(t, "data.items", cfg.Sources[0].DataPath)
	require.Equal(t, domain.StoreDriverDuckDB, cfg.Store.Driver)
	require.True(t, cfg.Store.History)
	require.Equal(t, 2*time.Minute, cfg.Timeout())
	require.Equal(t, "created", cfg.Rules["users"][0].Config["field"])
}

func TestLoadLegacyShape(t *testing.T) {
	path := writeFile(t, "sources.json", `{
  "data_sources": [
    {"source_name": "prices", "data_type": "csv", "data_urls": "https://example.com/prices.csv"},
    {"source_name": "traffic", "data_type": "gzip", "api_endpoint": "https://example.com/t.csv.gz"},
    {"source_name": "housing", "data_type": "kaggle", "dataset": "owner/housing", "file_name": "housing.csv"}
  ]
}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, []domain.SourceDescriptor{
		{Name: "prices", Method: domain.AccessDirectCSV, Location: "https://example.com/prices.csv", Delimiter: ";"},
		{Name: "traffic", Method: domain.AccessGzipCSV, Location: "https://example.com/t.csv.gz"},
		{Name: "housing", Method: domain.AccessManagedDataset, Location: "owner/housing", FileName: "housing.csv"},
	}, cfg.Sources)
}

func TestLoadErrorsAreConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{
			name:    "missing location",
			file:    "a.json",
			content: `{"sources": [{"name": "x", "method": "direct_csv"}]}`,
			wantErr: config.ErrMissingField,
		},
		{
			name:    "duplicate name",
			file:    "b.json",
			content: `{"sources": [{"name": "x", "method": "direct_csv", "location": "u"}, {"name": "x", "method": "gzip_csv", "location": "v"}]}`,
			wantErr: config.ErrDuplicateName,
		},
		{
			name:    "unknown method",
			file:    "c.json",
			content: `{"sources": [{"name": "x", "method": "ftp", "location": "u"}]}`,
			wantErr: config.ErrUnknownMethod,
		},
		{
			name:    "managed dataset without file",
			file:    "d.json",
			content: `{"sources": [{"name": "x", "method": "managed_dataset", "location": "o/d"}]}`,
			wantErr: config.ErrMissingField,
		},
		{
			name:    "postgres store without dsn",
			file:    "e.json",
			content: `{"sources": [], "store": {"driver": "postgres"}}`,
			wantErr: config.ErrMissingField,
		},
		{
			name: "rules keyed by dataset title",
			file: "f.yaml",
			content: `sources:
  - name: chicago_crime
    method: direct_csv
    location: https://data.cityofchicago.org/api/views/ijzp-q8t2/rows.csv
rules:
  Chicago Data Portal:
    - type: limit
      config: {count: 10}
`,
			wantErr: config.ErrUnknownTable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := config.Load(path)
			require.Error(t, err)

			var cfgErr *config.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, path, cfgErr.Path)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadMissingAndMalformed(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.True(t, errors.Is(err, os.ErrNotExist))

	_, err = config.Load(writeFile(t, "bad.json", `{"sources": [`))
	require.ErrorAs(t, err, &cfgErr)

	_, err = config.Load(writeFile(t, "bad.json", `{"httpTimeout": "soon"}`))
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg, err := config.Parse([]byte(`{"sources": [{"method": "direct_csv"}, {"name": "db", "method": "database", "location": "x.db"}]}`), "json")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "name")
	require.ErrorContains(t, err, "location")
	require.ErrorContains(t, err, "driver")
	require.ErrorContains(t, err, "query")
}

func TestApplyEnv(t *testing.T) {
	cfg := &config.Config{}
	env := map[string]string{
		"ETL_STORE_DRIVER": "mysql",
		"ETL_STORE_DSN":    "user:pw@tcp(localhost:3306)/etl",
		"ETL_CSV_DIR":      "out/csv",
		"ETL_HTTP_TIMEOUT": "45s",
		"ETL_KAGGLE_BIN":   "/opt/kaggle",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	require.NoError(t, cfg.ApplyEnv(lookup))
	require.Equal(t, domain.StoreDriverMySQL, cfg.Store.Driver)
	require.Equal(t, "user:pw@tcp(localhost:3306)/etl", cfg.Store.DSN)
	require.Equal(t, "out/csv", cfg.CSVDir)
	require.Equal(t, 45*time.Second, cfg.Timeout())
	require.Equal(t, "/opt/kaggle", cfg.KaggleBin)

	env["ETL_HTTP_TIMEOUT"] = "later"
	require.Error(t, cfg.ApplyEnv(lookup))
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ETL_STORE_PATH", filepath.Join(t.TempDir(), "env.db"))
	path := writeFile(t, "sources.json", `{"sources": [], "store": {"path": "file.db"}}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, os.Getenv("ETL_STORE_PATH"), cfg.Store.Path)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ETLPIPE_TEST_FROM_DOTENV=hello\n"), 0o644))
	t.Setenv("ETLPIPE_TEST_FROM_DOTENV", "")
	os.Unsetenv("ETLPIPE_TEST_FROM_DOTENV")

	require.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env"), envFile))
	require.Equal(t, "hello", os.Getenv("ETLPIPE_TEST_FROM_DOTENV"))
}
