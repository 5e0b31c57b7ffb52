package storage

import (
	"fmt"
	"strings"

	"etlpipe/internal/domain"
)

// dialect captures the SQL differences between store engines.
type dialect struct {
	driverName  string
	quoteChar   string
	numbered    bool // $1, $2 placeholders
	keyType     string
	textType    string
	intType     string
	realType    string
	boolType    string
	timeType    string
	tablesQuery string
}

var dialects = map[domain.StoreDriver]dialect{
	domain.StoreDriverSQLite: {
		driverName:  "sqlite",
		quoteChar:   `"`,
		keyType:     "TEXT",
		textType:    "TEXT",
		intType:     "INTEGER",
		realType:    "REAL",
		boolType:    "BOOLEAN",
		timeType:    "TIMESTAMP",
		tablesQuery: `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	},
	domain.StoreDriverDuckDB: {
		driverName:  "duckdb",
		quoteChar:   `"`,
		keyType:     "VARCHAR",
		textType:    "VARCHAR",
		intType:     "BIGINT",
		realType:    "DOUBLE",
		boolType:    "BOOLEAN",
		timeType:    "TIMESTAMP",
		tablesQuery: `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`,
	},
	domain.StoreDriverPostgres: {
		driverName:  "postgres",
		quoteChar:   `"`,
		numbered:    true,
		keyType:     "TEXT",
		textType:    "TEXT",
		intType:     "BIGINT",
		realType:    "DOUBLE PRECISION",
		boolType:    "BOOLEAN",
		timeType:    "TIMESTAMPTZ",
		tablesQuery: `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`,
	},
	// MySQL commits DDL implicitly: a failed insert after the DROP leaves the
	// table recreated but empty.
	domain.StoreDriverMySQL: {
		driverName:  "mysql",
		quoteChar:   "`",
		keyType:     "VARCHAR(64)",
		textType:    "TEXT",
		intType:     "BIGINT",
		realType:    "DOUBLE",
		boolType:    "BOOLEAN",
		timeType:    "DATETIME(6)",
		tablesQuery: `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name`,
	},
}

// quote returns name as a quoted identifier.
func (d dialect) quote(name string) string {
	return d.quoteChar + strings.ReplaceAll(name, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

// placeholders returns n comma-separated bind parameters.
func (d dialect) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		if d.numbered {
			ps[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}

// columnType maps a column kind to the engine's SQL type.
func (d dialect) columnType(kind string) string {
	switch kind {
	case kindInteger:
		return d.intType
	case kindReal:
		return d.realType
	case kindBool:
		return d.boolType
	case kindTime:
		return d.timeType
	default:
		return d.textType
	}
}
