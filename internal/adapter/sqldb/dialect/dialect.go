// Package dialect hides the few differences between the Postgres and SQLite drivers.
package dialect

import (
	"errors"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// TimestampType is the column type used for timestamps
func TimestampType(driver string) string {
	if driver == Postgres {
		return "TIMESTAMPTZ"
	}
	// SQLite drivers only decode time.Time for these declared types
	return "DATETIME"
}

// IsUniqueViolation reports whether err is a unique constraint failure
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
