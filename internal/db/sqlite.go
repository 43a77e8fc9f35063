package db

import (
	"database/sql/driver"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"

	"db_changelog_migrator/internal/version"
)

type sqliteDialect struct{ genericDialect }

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) CreateChangelog(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	ID NUMERIC NOT NULL PRIMARY KEY,
	APPLIED_AT VARCHAR(25) NOT NULL,
	DESCRIPTION VARCHAR(255) NOT NULL
)`, table)
}

// HoldsID limits ids to int64. Wider integers get REAL affinity and come back rounded.
func (sqliteDialect) HoldsID(id version.ID) bool { return id.IsInt64() }

func (sqliteDialect) IsUndefinedTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// sqlitePath strips the scheme left over from jdbc:sqlite:<path> URLs.
func sqlitePath(rawURL string) string {
	return strings.TrimPrefix(rawURL, "sqlite:")
}

func connectModernc(rawURL, _, _ string) (driver.Connector, error) {
	return connectorFor(&sqlite.Driver{}, sqlitePath(rawURL))
}

func connectMattn(rawURL, _, _ string) (driver.Connector, error) {
	return connectorFor(&sqlite3.SQLiteDriver{}, sqlitePath(rawURL))
}
