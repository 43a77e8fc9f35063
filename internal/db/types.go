package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"db_changelog_migrator/internal/version"
)

// Dialect holds the engine specific SQL the changelog store needs.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	CreateChangelog(table string) string
	// HoldsID reports whether the ID column created by CreateChangelog stores id exactly.
	HoldsID(id version.ID) bool
	// IsUndefinedTable reports whether err means the queried table does not exist.
	IsUndefinedTable(err error) bool
}

// ConnectFunc turns connection settings into a database/sql connector.
type ConnectFunc func(url, username, password string) (driver.Connector, error)

// Driver is a resolved database driver. Handles are shared across the
// components of one engine through the Registry.
type Driver struct {
	Name    string
	Source  string
	Dialect Dialect
	connect ConnectFunc
}

// Open returns a handle limited to a single connection. Callers close it when
// their operation is done.
func (d *Driver) Open(url, username, password string) (*sql.DB, error) {
	connector, err := d.connect(normalizeURL(url), username, password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Ping opens a connection and verifies it responds.
func (d *Driver) Ping(ctx context.Context, url, username, password string) error {
	db, err := d.Open(url, username, password)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

// normalizeURL drops the jdbc: prefix so existing environment files keep working.
func normalizeURL(url string) string {
	url = strings.TrimSpace(url)
	if len(url) >= 5 && strings.EqualFold(url[:5], "jdbc:") {
		return url[5:]
	}
	return url
}

// dsnConnector adapts a plain driver.Driver that lacks OpenConnector.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver { return c.driver }

func connectorFor(d driver.Driver, dsn string) (driver.Connector, error) {
	if dc, ok := d.(driver.DriverContext); ok {
		return dc.OpenConnector(dsn)
	}
	return dsnConnector{dsn: dsn, driver: d}, nil
}

type genericDialect struct{}

func (genericDialect) Name() string { return "generic" }

func (genericDialect) Placeholder(int) string { return "?" }

func (genericDialect) CreateChangelog(table string) string {
	return fmt.Sprintf("CREATE TABLE %s (ID DECIMAL(%d,0) NOT NULL PRIMARY KEY, APPLIED_AT VARCHAR(25) NOT NULL, DESCRIPTION VARCHAR(255) NOT NULL)", table, genericIDDigits)
}

// genericIDDigits is the widest DECIMAL precision common to the major engines.
const genericIDDigits = 38

func (genericDialect) HoldsID(id version.ID) bool { return id.Digits() <= genericIDDigits }

func (genericDialect) IsUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "doesn't exist")
}
