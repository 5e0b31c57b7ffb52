package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"etlpipe/internal/domain"
	"etlpipe/internal/etl"
)

// ── HTTP fetch ──────────────────────────────────────────────
// Shared by direct_csv, gzip_csv and json_api: one plain GET, no auth,
// no custom headers. Status >= 400 is an error.

// fetch performs a GET and hands the open body to parse.
func fetch(ctx context.Context, env *etl.Env, url string, parse func(io.Reader) (*etl.Table, error)) (*etl.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	client := env.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return parse(resp.Body)
}

// ── direct_csv ──────────────────────────────────────────────

type directCSVSource struct{}

func init() { etl.RegisterSource(&directCSVSource{}) }

func (s *directCSVSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessDirectCSV,
		Label:    "CSV over HTTP",
		Required: []string{"location"},
		Help:     "location is the URL of a delimited text file",
	}
}

func (s *directCSVSource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	return fetch(ctx, env, src.Location, func(r io.Reader) (*etl.Table, error) {
		return etl.ParseCSV(r, src.Name, src.Comma())
	})
}

// ── json_api ────────────────────────────────────────────────
// Fetches a JSON document and reads the array of objects at dataPath.

type jsonAPISource struct{}

func init() { etl.RegisterSource(&jsonAPISource{}) }

func (s *jsonAPISource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Method:   domain.AccessJSONAPI,
		Label:    "JSON API",
		Required: []string{"location"},
		Help:     "location is the endpoint URL; dataPath is a dot-separated path to the array (e.g. 'data.items')",
	}
}

func (s *jsonAPISource) Extract(ctx context.Context, src domain.SourceDescriptor, env *etl.Env) (*etl.Table, error) {
	return fetch(ctx, env, src.Location, func(r io.Reader) (*etl.Table, error) {
		return parseJSON(r, src.Name, src.DataPath)
	})
}

func parseJSON(r io.Reader, name, dataPath string) (*etl.Table, error) {
	var raw any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	if dataPath != "" {
		var err error
		raw, err = navigatePath(raw, dataPath)
		if err != nil {
			return nil, err
		}
	}

	return toTable(name, raw)
}

// navigatePath walks a dot-separated path into nested maps.
func navigatePath(obj any, path string) (any, error) {
	current := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q not found", part)
		}
		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("invalid data path: %q not found", part)
		}
	}
	return current, nil
}

// toTable converts a decoded JSON value into a table.
// Columns appear in first-seen order of keys, sorted within each object.
func toTable(name string, raw any) (*etl.Table, error) {
	var items []map[string]any
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				items = append(items, m)
			}
		}
	case map[string]any:
		// Single object → single record.
		items = []map[string]any{v}
	default:
		return nil, fmt.Errorf("expected array of objects, got %T", raw)
	}

	var columns []string
	seen := make(map[string]bool)
	records := make([]etl.Record, 0, len(items))
	for _, m := range items {
		flat := flattenMap(m)
		for _, k := range sortedKeys(flat) {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
		records = append(records, etl.Record{Data: flat})
	}

	t := etl.NewTable(name, columns)
	t.Records = records
	t.InferTypes()
	return t, nil
}

// flattenMap keeps scalar values from a map. Numbers become float64.
// Nested objects/arrays are serialized as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case string, bool, nil:
			flat[k] = x
		case float64:
			flat[k] = x
		case json.Number:
			if f, err := x.Float64(); err == nil {
				flat[k] = f
			} else {
				flat[k] = x.String()
			}
		default:
			// Serialize complex values.
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}
