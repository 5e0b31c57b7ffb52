package domain

import "time"

// StoreDriver represents the engine behind the relational store.
type StoreDriver string

const (
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverDuckDB   StoreDriver = "duckdb"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverMySQL    StoreDriver = "mysql"
)

// FileBased reports whether the driver stores everything in a single local file.
func (d StoreDriver) FileBased() bool {
	return d == StoreDriverSQLite || d == StoreDriverDuckDB
}

// StoreConfig holds the settings for opening the relational store.
// Path is used by file-based drivers, DSN by server drivers.
type StoreConfig struct {
	Driver  StoreDriver `json:"driver" yaml:"driver"`
	Path    string      `json:"path" yaml:"path"`
	DSN     string      `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	History bool        `json:"history,omitempty" yaml:"history,omitempty"` // persist run logs in _etl_runs
}

// RunStatus is the outcome of a pipeline run.
type RunStatus string

const (
	RunSuccess RunStatus = "success" // every source extracted and every table written
	RunPartial RunStatus = "partial" // some sources or tables were skipped
	RunError   RunStatus = "error"   // the run aborted before loading
)

// RunLog is a historical record of a pipeline run.
type RunLog struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      RunStatus `json:"status"`
	Sources     int       `json:"sources"`
	Tables      int       `json:"tables"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}
