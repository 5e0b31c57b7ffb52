package domain

// DatabaseDriver represents the type of database engine behind a database source.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// Valid reports whether d is a supported source driver.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}
