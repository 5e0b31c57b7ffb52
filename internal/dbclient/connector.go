package dbclient

import (
	"context"
	"fmt"
	"log/slog"

	"etlpipe/internal/domain"
)

// DefaultBatchSize is the number of rows handed to a Scan callback at a time.
const DefaultBatchSize = 500

// Batch is a run of consecutive result rows. Values are in Columns order.
type Batch struct {
	Columns []string
	Rows    [][]any
}

// Connector reads query results from an external database.
type Connector interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Scan runs a read-only query and calls fn once per batch of at most
	// batchSize rows. A query without rows still yields one empty batch so
	// the caller learns the columns. An error from fn stops the scan.
	Scan(ctx context.Context, query string, batchSize int, fn func(Batch) error) error

	Close() error
}

// NewConnector creates a Connector for driver. For SQL drivers dsn is passed
// to database/sql (a file path for sqlite); for mongodb it is the connection URI.
func NewConnector(driver domain.DatabaseDriver, dsn string, log *slog.Logger) (Connector, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("driver", driver)

	switch driver {
	case domain.DatabaseDriverSQLite:
		return openSQL("sqlite", sqliteDSN(dsn), log)
	case domain.DatabaseDriverMySQL:
		normalized, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		return openSQL("mysql", normalized, log)
	case domain.DatabaseDriverPostgres:
		return openSQL("postgres", postgresDSN(dsn), log)
	case domain.DatabaseDriverMongoDB:
		return openMongo(dsn, log)
	}
	return nil, fmt.Errorf("unsupported driver: %s", driver)
}

// ReadAll scans query to the end and returns one rectangular result set.
// Columns first seen in a later batch are appended; earlier rows are padded with nil.
func ReadAll(ctx context.Context, c Connector, query string, batchSize int) ([]string, [][]any, error) {
	var columns []string
	var rows [][]any

	err := c.Scan(ctx, query, batchSize, func(b Batch) error {
		columns = mergeColumns(columns, b.Columns)
		rows = append(rows, alignRows(b, columns)...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for i, r := range rows {
		if len(r) < len(columns) {
			rows[i] = append(r, make([]any, len(columns)-len(r))...)
		}
	}
	return columns, rows, nil
}

func mergeColumns(into, cols []string) []string {
	seen := make(map[string]bool, len(into))
	for _, c := range into {
		seen[c] = true
	}
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			into = append(into, c)
		}
	}
	return into
}

// alignRows lays out a batch's rows in the given column order.
func alignRows(b Batch, columns []string) [][]any {
	pos := make(map[string]int, len(b.Columns))
	for i, c := range b.Columns {
		pos[c] = i
	}
	out := make([][]any, len(b.Rows))
	for i, r := range b.Rows {
		row := make([]any, len(columns))
		for j, c := range columns {
			if k, ok := pos[c]; ok && k < len(r) {
				row[j] = r[k]
			}
		}
		out[i] = row
	}
	return out
}
