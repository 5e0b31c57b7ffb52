package sources

import (
	"context"
	"fmt"
	"sort"

	"etlpipe/internal/dbclient"
	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Reads the result of a query against an external database through a
// dbclient.Connector. location is the DSN (file path for sqlite, URI for mongodb).

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessDatabase,
		Label:    "Database Query",
		Required: []string{"location", "driver", "query"},
		Help:     "driver is sqlite, mysql, postgres or mongodb; query is SQL, or a JSON find/aggregate document for mongodb",
	}
}

func (s *databaseSource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	driver := domain.DatabaseDriver(src.Driver)
	if !driver.Valid() {
		return nil, fmt.Errorf("unsupported driver %q", src.Driver)
	}
	if src.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	conn, err := dbclient.NewConnector(driver, src.Location, env.Log)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	columns, rows, err := dbclient.ReadAll(ctx, conn, src.Query, dbclient.DefaultBatchSize)
	if err != nil {
		return nil, err
	}

	t := etl.NewTable(src.Name, columns)
	t.Records = make([]etl.Record, 0, len(rows))
	for _, row := range rows {
		data := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(row) && row[i] != nil {
				data[col] = row[i]
			}
		}
		t.Records = append(t.Records, etl.Record{Data: data})
	}
	t.InferTypes()
	return t, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
