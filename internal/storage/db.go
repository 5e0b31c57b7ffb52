package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"etlpipe/internal/domain"
)

// DefaultPath is the store file used when no path is configured.
const DefaultPath = "etl.db"

// DB wraps the relational store connection.
type DB struct {
	conn    *sql.DB
	dialect dialect
	cfg     domain.StoreConfig
}

// Open opens (or creates) the store described by cfg. File-based stores get
// their parent directory created first.
func Open(cfg domain.StoreConfig) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = domain.StoreDriverSQLite
	}
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}

	dsn, err := storeDSN(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver.FileBased() {
		// Single-file stores allow one writer; one connection avoids busy errors.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: d, cfg: cfg}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.History {
		if err := db.migrate(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func storeDSN(cfg domain.StoreConfig) (string, error) {
	switch cfg.Driver {
	case domain.StoreDriverSQLite, domain.StoreDriverDuckDB:
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("create store directory: %w", err)
		}
		if cfg.Driver == domain.StoreDriverSQLite {
			return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
		}
		return path, nil
	case domain.StoreDriverMySQL:
		if cfg.DSN == "" {
			return "", fmt.Errorf("mysql store needs a dsn")
		}
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	case domain.StoreDriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("postgres store needs a dsn")
		}
		return cfg.DSN, nil
	}
	return "", fmt.Errorf("unsupported store driver: %s", cfg.Driver)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver returns the store engine.
func (db *DB) Driver() domain.StoreDriver {
	return db.cfg.Driver
}

// Describe returns a human-readable location for the store, without credentials.
func (db *DB) Describe() string {
	if db.cfg.Driver.FileBased() {
		path := db.cfg.Path
		if path == "" {
			path = DefaultPath
		}
		return string(db.cfg.Driver) + ":" + path
	}
	return string(db.cfg.Driver)
}

// bookkeepingPrefix marks tables owned by the pipeline itself.
const bookkeepingPrefix = "_etl_"

func (db *DB) migrate() error {
	d := db.dialect
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s PRIMARY KEY,
			started_at %s NOT NULL,
			finished_at %s NOT NULL,
			status %s NOT NULL,
			sources INTEGER NOT NULL DEFAULT 0,
			tables_loaded INTEGER NOT NULL DEFAULT 0,
			rows_read INTEGER NOT NULL DEFAULT 0,
			rows_written INTEGER NOT NULL DEFAULT 0,
			error %s
		)`, d.quote(runsTable), d.keyType, d.timeType, d.timeType, d.keyType, d.textType),
	}

	for _, m := range migrations {
		if _, err := db.conn.ExecContext(context.Background(), m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", strings.Join(strings.Fields(m), " ")[:40], err)
		}
	}
	return nil
}
