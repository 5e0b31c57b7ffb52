package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"etlpipe/internal/domain"
)

func seedSQLite(t *testing.T, rows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE events (id INTEGER, kind TEXT, payload BLOB)`)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		_, err = db.Exec(`INSERT INTO events VALUES (?, ?, ?)`, i, "click", []byte("raw"))
		require.NoError(t, err)
	}
	return path
}

func openSeeded(t *testing.T, rows int) Connector {
	t.Helper()
	c, err := NewConnector(domain.DatabaseDriverSQLite, seedSQLite(t, rows), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteReadAll(t *testing.T) {
	c := openSeeded(t, 7)
	require.NoError(t, c.Ping(context.Background()))

	cols, rows, err := ReadAll(context.Background(), c, "SELECT id, kind, payload FROM events ORDER BY id", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "kind", "payload"}, cols)
	require.Len(t, rows, 7)
	require.Equal(t, 6.0, rows[6][0])
	require.Equal(t, "raw", rows[0][2])
}

func TestSQLiteScanBatches(t *testing.T) {
	c := openSeeded(t, 7)

	var sizes []int
	err := c.Scan(context.Background(), "SELECT id FROM events", 3, func(b Batch) error {
		require.Equal(t, []string{"id"}, b.Columns)
		sizes = append(sizes, len(b.Rows))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{3, 3, 1}, sizes)
}

func TestSQLiteScanEmptyResultKeepsColumns(t *testing.T) {
	c := openSeeded(t, 0)

	cols, rows, err := ReadAll(context.Background(), c, "SELECT id, kind FROM events", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "kind"}, cols)
	require.Empty(t, rows)
}

func TestSQLiteScanStopsOnCallbackError(t *testing.T) {
	c := openSeeded(t, 10)
	stop := errors.New("stop")

	calls := 0
	err := c.Scan(context.Background(), "SELECT id FROM events", 2, func(Batch) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestSQLiteRejectsWrites(t *testing.T) {
	c := openSeeded(t, 1)

	for _, q := range []string{"DELETE FROM events", "  drop table events", "INSERT INTO events VALUES (1, 'x', NULL)"} {
		err := c.Scan(context.Background(), q, 10, func(Batch) error { return nil })
		require.ErrorIs(t, err, ErrWriteQuery, q)
	}
}

func TestIsReadQuery(t *testing.T) {
	require.True(t, isReadQuery("select 1"))
	require.True(t, isReadQuery("\n WITH x AS (SELECT 1) SELECT * FROM x"))
	require.True(t, isReadQuery("PRAGMA table_info(events)"))
	require.False(t, isReadQuery("UPDATE events SET kind = 'x'"))
}

func TestMergeAndAlignColumns(t *testing.T) {
	cols := mergeColumns(nil, []string{"_id", "a"})
	cols = mergeColumns(cols, []string{"a", "b"})
	require.Equal(t, []string{"_id", "a", "b"}, cols)

	b := Batch{Columns: []string{"b", "a"}, Rows: [][]any{{"B", "A"}}}
	require.Equal(t, [][]any{{nil, "A", "B"}}, alignRows(b, cols))
}

func TestDSNHelpers(t *testing.T) {
	require.Equal(t, "file:/tmp/x.db?mode=ro&_pragma=busy_timeout(5000)", sqliteDSN("/tmp/x.db"))
	require.Equal(t, "file:/tmp/x.db?mode=rw", sqliteDSN("file:/tmp/x.db?mode=rw"))

	require.Contains(t, postgresDSN("postgres://u:p@localhost/db"), "sslmode=disable")
	require.Equal(t, "postgres://u:p@localhost/db?sslmode=require", postgresDSN("postgres://u:p@localhost/db?sslmode=require"))

	dsn, err := mysqlDSN("user:pw@tcp(localhost:3306)/shop")
	require.NoError(t, err)
	require.Contains(t, dsn, "parseTime=true")
}

func TestMongoDatabaseName(t *testing.T) {
	require.Equal(t, "shop", mongoDatabaseName("mongodb://u:p@localhost:27017/shop?authSource=admin"))
	require.Equal(t, "test", mongoDatabaseName("mongodb+srv://cluster.example.net"))
	require.Equal(t, "test", mongoDatabaseName("mongodb://localhost:27017/"))
}

func TestMongoConnectorRejectsBadURI(t *testing.T) {
	_, err := NewConnector(domain.DatabaseDriverMongoDB, "localhost:27017", nil)
	require.Error(t, err)
}

func TestParseMongoQuery(t *testing.T) {
	mq, err := parseMongoQuery(`{"collection": "orders", "filter": {"status": "paid"}, "limit": 5}`)
	require.NoError(t, err)
	require.Equal(t, "orders", mq.Collection)
	require.EqualValues(t, 5, mq.Limit)

	_, err = parseMongoQuery(`{"filter": {}}`)
	require.Error(t, err)

	_, err = parseMongoQuery(`{"collection": "orders", "operation": "deleteMany"}`)
	require.ErrorIs(t, err, ErrWriteQuery)

	_, err = parseMongoQuery(`not json`)
	require.Error(t, err)

	_, err = parseMongoQuery(`{"collection": "orders", "operation": "aggregate",
		"pipeline": [{"$match": {"status": "paid"}}, {"$out": "paid_orders"}]}`)
	require.ErrorIs(t, err, ErrWriteQuery)

	_, err = parseMongoQuery(`{"collection": "orders", "operation": "aggregate",
		"pipeline": [{"$merge": {"into": "totals"}}]}`)
	require.ErrorIs(t, err, ErrWriteQuery)

	mq, err = parseMongoQuery(`{"collection": "orders", "operation": "aggregate",
		"pipeline": [{"$group": {"_id": "$status", "n": {"$sum": 1}}}]}`)
	require.NoError(t, err)
	require.Len(t, mq.Pipeline, 1)
}

func TestDocsBatch(t *testing.T) {
	b := docsBatch([]bson.D{
		{{Key: "name", Value: "ana"}, {Key: "_id", Value: "1"}},
		{{Key: "_id", Value: "2"}, {Key: "age", Value: int32(40)}},
	})
	require.Equal(t, []string{"_id", "age", "name"}, b.Columns)
	require.Equal(t, [][]any{{"1", nil, "ana"}, {"2", 40.0, nil}}, b.Rows)

	empty := docsBatch(nil)
	require.Empty(t, empty.Columns)
	require.Empty(t, empty.Rows)
}

func TestUnmarshalEJSON(t *testing.T) {
	doc, err := unmarshalEJSON(map[string]any{"_id": map[string]any{"$oid": "5f1d7f3e9d1e8b3a4c2b1a00"}})
	require.NoError(t, err)
	require.Len(t, doc, 1)
	_, ok := doc[0].Value.(bson.ObjectID)
	require.True(t, ok)

	doc, err = unmarshalEJSON(nil)
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestBSONValue(t *testing.T) {
	oid := bson.NewObjectID()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, oid.Hex(), bsonValue(oid))
	require.Equal(t, ts, bsonValue(bson.NewDateTimeFromTime(ts)))
	require.Equal(t, 42.0, bsonValue(int32(42)))
	require.Equal(t, 7.0, bsonValue(int64(7)))
	require.Equal(t, "x", bsonValue("x"))
	require.Nil(t, bsonValue(nil))
	require.Equal(t, `{"a":1}`, bsonValue(bson.D{{Key: "a", Value: int32(1)}}))
}
