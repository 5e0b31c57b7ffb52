package app

import (
	"context"
	"fmt"
	"log/slog"

	"etlpipe/internal/config"
	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
	_ "etlpipe/internal/etl/sources" // register all sources via init()
	mcpserver "etlpipe/internal/mcp"
	"etlpipe/internal/storage"
)

// App wires a loaded config to the pipeline stages and the store.
// The store is opened and closed once per operation.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Env is shared by every extraction; tests replace its Runner or HTTPClient.
	Env *etl.Env
}

// Load reads and validates the config at path, including its table rules.
func Load(path string, log *slog.Logger) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, log)
}

// New builds an App around an already loaded config.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &config.ConfigError{Path: cfg.Path, Err: err}
	}
	if err := etl.ValidateRules(cfg.Rules); err != nil {
		return nil, &config.ConfigError{Path: cfg.Path, Err: err}
	}
	env := etl.NewEnv(cfg.Timeout(), cfg.DownloadDir, cfg.KaggleBin)
	env.Log = log
	return &App{cfg: cfg, log: log, Env: env}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Sources returns the configured sources in file order.
func (a *App) Sources() []domain.SourceDescriptor {
	return a.cfg.Sources
}

func (a *App) openStore() (*storage.DB, error) {
	db, err := storage.Open(a.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.log.Debug("app: store opened", "store", db.Describe())
	return db, nil
}

func (a *App) engine(db *storage.DB) *etl.Engine {
	dests := []etl.Destination{storage.NewTableStore(db)}
	if a.cfg.CSVDir != "" {
		dests = append(dests, &storage.CSVDir{Dir: a.cfg.CSVDir})
	}

	e := &etl.Engine{
		Extractor:   &etl.Extractor{Env: a.Env, Log: a.log},
		Transformer: &etl.Transformer{Rules: a.cfg.Rules, Log: a.log},
		Loader:      &etl.Loader{Destinations: dests, Log: a.log},
		Log:         a.log,
	}
	if a.cfg.Store.History {
		e.History = storage.NewRunLogStore(db)
	}
	return e
}

// Run executes the pipeline once. The returned error is only set when the
// store cannot be opened; per-source and per-table failures are in the result.
func (a *App) Run(ctx context.Context) (*etl.RunResult, error) {
	db, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return a.engine(db).Run(ctx, a.cfg.Sources), nil
}

// Preview extracts the named source and returns at most maxRows records.
func (a *App) Preview(ctx context.Context, source string, maxRows int) (*etl.Table, error) {
	src, ok := a.cfg.Source(source)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	x := &etl.Extractor{Env: a.Env, Log: a.log}
	e := &etl.Engine{Extractor: x, Log: a.log}
	return e.Preview(ctx, src, maxRows)
}

// Tables lists the data tables in the store with their row counts.
func (a *App) Tables(ctx context.Context) ([]mcpserver.TableInfo, error) {
	db, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	store := storage.NewTableStore(db)
	names, err := store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]mcpserver.TableInfo, 0, len(names))
	for _, name := range names {
		n, err := store.CountRows(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, mcpserver.TableInfo{Name: name, Rows: n})
	}
	return infos, nil
}

// History returns the most recent runs. It fails when history is disabled.
func (a *App) History(ctx context.Context, limit int) ([]domain.RunLog, error) {
	if !a.cfg.Store.History {
		return nil, fmt.Errorf("run history is disabled (set store.history in %s)", a.cfg.Path)
	}
	db, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return storage.NewRunLogStore(db).ListRunLogs(ctx, limit)
}

// WatchPaths returns the config file plus every local file source, the
// files whose changes should trigger a run in watch mode.
func (a *App) WatchPaths() []string {
	var paths []string
	if a.cfg.Path != "" {
		paths = append(paths, a.cfg.Path)
	}
	for _, src := range a.cfg.Sources {
		switch src.Method {
		case domain.AccessCSVFile, domain.AccessJSONFile:
			paths = append(paths, src.Location)
		}
	}
	return paths
}

var _ mcpserver.Pipeline = (*App)(nil)
