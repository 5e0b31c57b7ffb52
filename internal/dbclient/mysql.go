package dbclient

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// mysqlDSN normalizes a MySQL DSN so DATE/DATETIME columns scan as time.Time.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
