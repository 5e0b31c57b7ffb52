package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"etlpipe/internal/etl"
)

// CSVDir writes each table to <Dir>/<table>.csv with a header row.
// It implements etl.Destination.
type CSVDir struct {
	Dir string
}

func (c *CSVDir) Name() string {
	return "csv:" + c.Dir
}

// WriteTable replaces <Dir>/<table>.csv. The file is written to a temporary
// name first and renamed into place.
func (c *CSVDir) WriteTable(ctx context.Context, t *etl.Table) (int, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("create csv dir: %w", err)
	}

	path := c.Path(t.Name)
	tmp, err := os.CreateTemp(c.Dir, "."+t.Name+"-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	cols := t.Columns()
	if err := w.Write(cols); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(cols))
	for i, r := range t.Records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				tmp.Close()
				return 0, err
			}
		}
		for j, col := range cols {
			row[j] = formatCell(r.Data[col])
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename: %w", err)
	}
	return t.Len(), nil
}

// Path returns the file a table is written to.
func (c *CSVDir) Path(table string) string {
	return filepath.Join(c.Dir, table+".csv")
}

// formatCell renders a value as CSV text; missing values are empty.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
