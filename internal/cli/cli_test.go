package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/app"
	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
	"etlpipe/internal/logger"
	"etlpipe/internal/service"
	"etlpipe/internal/storage"
)

// pipelineFixture serves one good CSV and one failing endpoint, and writes a
// config pointing at both with a SQLite store in a temp dir.
type pipelineFixture struct {
	dir        string
	configPath string
	storePath  string
}

func newPipelineFixture(t *testing.T, extra string) *pipelineFixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.csv":
			fmt.Fprint(w, "city,population\nLisbon,545000\nPorto,232000\nBraga,NA\n")
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	f := &pipelineFixture{
		dir:        dir,
		configPath: filepath.Join(dir, "sources.json"),
		storePath:  filepath.Join(dir, "data", "etl.db"),
	}
	cfg := fmt.Sprintf(`{
  "sources": [
    {"name": "cities", "method": "direct_csv", "location": %q},
    {"name": "broken", "method": "direct_csv", "location": %q}
  ],
  "store": {"driver": "sqlite", "path": %q, "history": true}%s
}`, srv.URL+"/good.csv", srv.URL+"/broken.csv", f.storePath, extra)
	require.NoError(t, os.WriteFile(f.configPath, []byte(cfg), 0o644))
	return f
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func readTable(t *testing.T, storePath, name string) *etl.Table {
	t.Helper()
	db, err := storage.Open(domain.StoreConfig{Driver: domain.StoreDriverSQLite, Path: storePath})
	require.NoError(t, err)
	defer db.Close()
	table, err := storage.NewTableStore(db).ReadTable(context.Background(), name)
	require.NoError(t, err)
	return table
}

func TestRunLoadsGoodSourceAndSkipsFailingOne(t *testing.T) {
	f := newPipelineFixture(t, "")

	code, stdout, stderr := runCLI(t, f.configPath)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "partial")
	require.Contains(t, stdout, "skipped")

	db, err := storage.Open(domain.StoreConfig{Driver: domain.StoreDriverSQLite, Path: f.storePath})
	require.NoError(t, err)
	defer db.Close()
	names, err := storage.NewTableStore(db).ListTables(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"cities"}, names)

	// The NA row is dropped by the null filter.
	cities := readTable(t, f.storePath, "cities")
	require.Equal(t, 2, cities.Len())
}

func TestRunStrictFailsOnPartial(t *testing.T) {
	f := newPipelineFixture(t, "")

	code, _, stderr := runCLI(t, "run", f.configPath, "--strict")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "status partial")
}

func TestRunJSONOutput(t *testing.T) {
	f := newPipelineFixture(t, "")

	code, stdout, _ := runCLI(t, "run", "-c", f.configPath, "-o", "json")
	require.Equal(t, 0, code)

	var result etl.RunResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.Equal(t, domain.RunPartial, result.Status)
	require.Equal(t, []string{"cities"}, result.Extracted)
	require.Equal(t, 2, result.RowsWritten)
	require.Len(t, result.Errors, 1)
}

func TestRunTwiceReplacesTable(t *testing.T) {
	f := newPipelineFixture(t, "")

	code, _, _ := runCLI(t, f.configPath)
	require.Equal(t, 0, code)
	code, _, _ = runCLI(t, f.configPath)
	require.Equal(t, 0, code)

	require.Equal(t, 2, readTable(t, f.storePath, "cities").Len())
}

func TestRunAppliesRulesAndWritesCSV(t *testing.T) {
	csvDir := filepath.Join(t.TempDir(), "out")
	f := newPipelineFixture(t, fmt.Sprintf(`,
  "csvDir": %q,
  "rules": {"cities": [{"type": "filter", "config": {"field": "population", "op": "gt", "value": 300000}}]}`, csvDir))

	code, _, stderr := runCLI(t, f.configPath)
	require.Equal(t, 0, code, stderr)

	cities := readTable(t, f.storePath, "cities")
	require.Equal(t, 1, cities.Len())
	require.Equal(t, "Lisbon", cities.Records[0].Data["city"])

	data, err := os.ReadFile(filepath.Join(csvDir, "cities.csv"))
	require.NoError(t, err)
	require.Equal(t, "city,population\nLisbon,545000\n", string(data))
}

func TestMissingConfigExitsNonZero(t *testing.T) {
	code, _, stderr := runCLI(t, filepath.Join(t.TempDir(), "nope.json"))
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "nope.json")
}

func TestInvalidRuleIsConfigError(t *testing.T) {
	f := newPipelineFixture(t, `,
  "rules": {"cities": [{"type": "no_such_rule"}]}`)

	code, _, stderr := runCLI(t, f.configPath)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "config")
}

func TestTablesAndHistoryCommands(t *testing.T) {
	f := newPipelineFixture(t, "")
	code, _, _ := runCLI(t, f.configPath)
	require.Equal(t, 0, code)

	code, stdout, _ := runCLI(t, "tables", f.configPath)
	require.Equal(t, 0, code)
	require.Contains(t, stdout, "cities")
	require.NotContains(t, stdout, "_etl_runs")

	code, stdout, _ = runCLI(t, "history", f.configPath, "-o", "json")
	require.Equal(t, 0, code)
	var logs []domain.RunLog
	require.NoError(t, json.Unmarshal([]byte(stdout), &logs))
	require.Len(t, logs, 1)
	require.Equal(t, domain.RunPartial, logs[0].Status)
}

func TestPreviewCommand(t *testing.T) {
	f := newPipelineFixture(t, "")

	code, stdout, stderr := runCLI(t, "preview", "cities", f.configPath, "-n", "1")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "Lisbon")
	require.NotContains(t, stdout, "Porto")

	code, _, _ = runCLI(t, "preview", "unknown", f.configPath)
	require.Equal(t, 1, code)
}

func TestSourcesCommandListsAccessMethods(t *testing.T) {
	code, stdout, _ := runCLI(t, "sources")
	require.Equal(t, 0, code)
	for _, m := range domain.AccessMethods() {
		require.Contains(t, stdout, string(m))
	}
}

func TestScheduleRequiresCron(t *testing.T) {
	f := newPipelineFixture(t, "")
	code, _, stderr := runCLI(t, "schedule", f.configPath)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "cron")
}

func TestUnknownOutputFormat(t *testing.T) {
	code, _, stderr := runCLI(t, "sources", "-o", "xml")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unsupported output format")
}

func TestWatchNewSourcesAddsLocalFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sources.json")
	dataPath := filepath.Join(t.TempDir(), "towns.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte("town\nFaro\n"), 0o644))
	cfg := fmt.Sprintf(`{
  "sources": [{"name": "towns", "method": "csv_file", "location": %q}],
  "store": {"driver": "sqlite", "path": %q}
}`, dataPath, filepath.Join(dir, "etl.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var calls atomic.Int32
	svc := service.NewPipelineService(cfgPath, func(ctx context.Context) (*etl.RunResult, error) {
		calls.Add(1)
		return &etl.RunResult{Status: domain.RunSuccess}, nil
	}, &service.MockEmitter{}, logger.NewTest())
	require.NoError(t, svc.Watch(context.Background(), cfgPath))
	defer svc.Stop()

	a, err := app.Load(cfgPath, logger.NewTest())
	require.NoError(t, err)
	watchNewSources(svc, a, logger.NewTest())

	require.NoError(t, os.WriteFile(dataPath, []byte("town\nFaro\nBeja\n"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() >= 1 },
		5*time.Second, 50*time.Millisecond)
}
