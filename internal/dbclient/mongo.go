package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoQuery is the JSON document a mongodb source uses as its query.
//
//	{"collection": "orders", "filter": {"status": "paid"}, "sort": {"_id": 1}}
//	{"collection": "orders", "operation": "aggregate", "pipeline": [...]}
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default) | aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int64          `json:"limit,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
}

func parseMongoQuery(query string) (mongoQuery, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return mq, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return mq, fmt.Errorf("query must specify 'collection'")
	}
	switch mq.Operation {
	case "", "find", "aggregate":
	default:
		return mq, fmt.Errorf("%w: operation %q", ErrWriteQuery, mq.Operation)
	}
	for i, stage := range mq.Pipeline {
		doc, ok := stage.(map[string]any)
		if !ok {
			continue
		}
		for _, name := range []string{"$out", "$merge"} {
			if _, writes := doc[name]; writes {
				return mq, fmt.Errorf("%w: pipeline stage %d uses %s", ErrWriteQuery, i, name)
			}
		}
	}
	return mq, nil
}

type mongoConnector struct {
	client *mongo.Client
	dbName string
	log    *slog.Logger
}

func openMongo(uri string, log *slog.Logger) (*mongoConnector, error) {
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		return nil, fmt.Errorf("mongodb source needs a mongodb:// or mongodb+srv:// URI")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: mongoDatabaseName(uri), log: log}, nil
}

// mongoDatabaseName returns the database named in the URI path, or "test".
func mongoDatabaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "test"
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return "test"
}

// unmarshalEJSON turns a decoded JSON object into BSON, honouring Extended
// JSON wrappers such as $oid and $date.
func unmarshalEJSON(field map[string]any) (bson.D, error) {
	if field == nil {
		return nil, nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	return doc, nil
}

func (m *mongoConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Scan(ctx context.Context, query string, batchSize int, fn func(Batch) error) error {
	mq, err := parseMongoQuery(query)
	if err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	cursor, err := m.open(ctx, mq, batchSize)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var docs []bson.D
	emitted, total := false, 0
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
		if len(docs) == batchSize {
			if err := fn(docsBatch(docs)); err != nil {
				return err
			}
			total += len(docs)
			emitted = true
			docs = nil
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor: %w", err)
	}
	if len(docs) > 0 || !emitted {
		if err := fn(docsBatch(docs)); err != nil {
			return err
		}
		total += len(docs)
	}

	m.log.Debug("dbclient/mongo: query drained", "collection", mq.Collection, "docs", total)
	return nil
}

func (m *mongoConnector) open(ctx context.Context, mq mongoQuery, batchSize int) (*mongo.Cursor, error) {
	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	if mq.Operation == "aggregate" {
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err := coll.Aggregate(ctx, pipeline, options.Aggregate().SetBatchSize(int32(batchSize)))
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		return cursor, nil
	}

	filter, err := unmarshalEJSON(mq.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if filter == nil {
		filter = bson.D{}
	}
	opts := options.Find().SetBatchSize(int32(batchSize))
	if mq.Projection != nil {
		opts.SetProjection(mq.Projection)
	}
	if mq.Sort != nil {
		sortDoc, err := unmarshalEJSON(mq.Sort)
		if err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		opts.SetSort(sortDoc)
	}
	if mq.Limit > 0 {
		opts.SetLimit(mq.Limit)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return cursor, nil
}

// docsBatch flattens documents into rows. Columns are the union of top-level
// keys, _id first and the rest in name order.
func docsBatch(docs []bson.D) Batch {
	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, e := range doc {
			if !seen[e.Key] {
				seen[e.Key] = true
				columns = append(columns, e.Key)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "_id" || columns[j] == "_id" {
			return columns[i] == "_id"
		}
		return columns[i] < columns[j]
	})

	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	rows := make([][]any, len(docs))
	for i, doc := range docs {
		row := make([]any, len(columns))
		for _, e := range doc {
			row[pos[e.Key]] = bsonValue(e.Value)
		}
		rows[i] = row
	}
	return Batch{Columns: columns, Rows: rows}
}

// bsonValue converts a decoded BSON value into a pipeline scalar.
// Nested documents and arrays become relaxed Extended JSON text.
func bsonValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Decimal128:
		return val.String()
	case bson.D, bson.A:
		b, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: val}}, false, false)
		if err != nil {
			return fmt.Sprint(val)
		}
		s := strings.TrimSpace(string(b))
		s = strings.TrimPrefix(s, `{"v":`)
		return strings.TrimSuffix(s, "}")
	}
	return fmt.Sprint(v)
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
