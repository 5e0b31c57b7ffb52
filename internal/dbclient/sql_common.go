package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrWriteQuery is returned when a source query would modify data.
var ErrWriteQuery = errors.New("only read queries are allowed")

var readPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA", "VALUES", "TABLE"}

// isReadQuery reports whether query starts with a read-only keyword.
func isReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, p := range readPrefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

// sqlConnector serves sqlite, mysql and postgres through database/sql.
type sqlConnector struct {
	db  *sql.DB
	log *slog.Logger
}

func openSQL(driverName, dsn string, log *slog.Logger) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// A source runs a single query at a time.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlConnector{db: db, log: log}, nil
}

func (c *sqlConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) Scan(ctx context.Context, query string, batchSize int, fn func(Batch) error) error {
	if !isReadQuery(query) {
		return ErrWriteQuery
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}

	batch := Batch{Columns: cols}
	emitted, total := false, 0
	for rows.Next() {
		row, err := scanRow(rows, len(cols))
		if err != nil {
			return err
		}
		batch.Rows = append(batch.Rows, row)
		if len(batch.Rows) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			total += len(batch.Rows)
			emitted = true
			batch = Batch{Columns: cols}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	if len(batch.Rows) > 0 || !emitted {
		if err := fn(batch); err != nil {
			return err
		}
		total += len(batch.Rows)
	}

	c.log.Debug("dbclient/sql: query drained", "rows", total, "columns", len(cols))
	return nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	raw := make([]any, n)
	dest := make([]any, n)
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	for i, v := range raw {
		raw[i] = driverValue(v)
	}
	return raw, nil
}

// driverValue maps a database/sql value onto the pipeline's scalar kinds.
func driverValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	}
	return v
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
