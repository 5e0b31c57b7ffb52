package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"etlpipe/internal/etl"
)

// Column kinds used to pick SQL types.
const (
	kindInteger = "integer"
	kindReal    = "real"
	kindBool    = "boolean"
	kindTime    = "timestamp"
	kindText    = "text"
)

// ErrNoColumns is returned when writing a table without any column.
var ErrNoColumns = errors.New("table has no columns")

// TableStore writes and reads whole data tables in the relational store.
// It implements etl.Destination.
type TableStore struct {
	db *DB
}

// NewTableStore creates a new TableStore.
func NewTableStore(db *DB) *TableStore {
	return &TableStore{db: db}
}

func (s *TableStore) Name() string {
	return s.db.Describe()
}

// WriteTable replaces the named table: DROP, CREATE and INSERT run in one
// transaction, so readers see either the old or the new contents.
func (s *TableStore) WriteTable(ctx context.Context, t *etl.Table) (int, error) {
	if strings.HasPrefix(t.Name, bookkeepingPrefix) {
		return 0, fmt.Errorf("table name %q is reserved", t.Name)
	}
	cols := t.Columns()
	if len(cols) == 0 {
		return 0, ErrNoColumns
	}
	d := s.db.dialect
	kinds := columnKinds(t)

	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.quote(c)
		defs[i] = quoted[i] + " " + d.columnType(kinds[i])
	}
	name := d.quote(t.Name)

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(quoted, ", "), d.placeholders(len(cols))))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i, r := range t.Records {
		for j, c := range cols {
			args[j] = storeValue(kinds[j], r.Data[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return t.Len(), nil
}

// ReadTable loads a whole table back from the store, in insertion order.
func (s *TableStore) ReadTable(ctx context.Context, name string) (*etl.Table, error) {
	rows, err := s.db.conn.QueryContext(ctx, "SELECT * FROM "+s.db.dialect.quote(name))
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	t := etl.NewTable(name, cols)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		data := make(map[string]any, len(cols))
		for i, c := range cols {
			if v := loadValue(values[i]); v != nil {
				data[c] = v
			}
		}
		t.Records = append(t.Records, etl.Record{Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	t.InferTypes()
	return t, nil
}

// ListTables returns the names of the data tables, excluding bookkeeping tables.
func (s *TableStore) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.dialect.tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, bookkeepingPrefix) {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountRows returns the number of rows in a table.
func (s *TableStore) CountRows(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.db.dialect.quote(name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// columnKinds picks the storage kind of every column from the values it holds.
// Mixed or empty columns are stored as text.
func columnKinds(t *etl.Table) []string {
	kinds := make([]string, len(t.Schema.Fields))
	for i, f := range t.Schema.Fields {
		kind := ""
		for _, r := range t.Records {
			k := valueKind(r.Data[f.Name])
			switch {
			case k == "":
				continue
			case kind == "":
				kind = k
			case kind == kindInteger && k == kindReal, kind == kindReal && k == kindInteger:
				kind = kindReal
			case kind != k:
				kind = kindText
			}
			if kind == kindText {
				break
			}
		}
		if kind == "" {
			kind = kindText
		}
		kinds[i] = kind
	}
	return kinds
}

func valueKind(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return kindInteger
		}
		return kindReal
	case int, int32, int64:
		return kindInteger
	case bool:
		return kindBool
	case time.Time:
		return kindTime
	default:
		return kindText
	}
}

// storeValue converts a pipeline value into a driver argument for a column kind.
func storeValue(kind string, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case kindInteger:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int, int32, int64:
			return n
		}
	case kindReal:
		if f, ok := v.(float64); ok {
			return f
		}
	case kindBool:
		if b, ok := v.(bool); ok {
			return b
		}
	case kindTime:
		if ts, ok := v.(time.Time); ok {
			return ts
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// loadValue converts a scanned driver value into a pipeline value.
func loadValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case int:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
