package dbclient

import (
	"strings"

	_ "modernc.org/sqlite"
)

// sqliteDSN opens an external SQLite file read-only with a busy timeout.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
}
