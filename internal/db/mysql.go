package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"db_changelog_migrator/internal/version"
)

const (
	mysqlNoSuchTable = 1146
	mysqlMaxDigits   = 65
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) CreateChangelog(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	ID DECIMAL(%d,0) NOT NULL PRIMARY KEY,
	APPLIED_AT VARCHAR(25) NOT NULL,
	DESCRIPTION VARCHAR(255) NOT NULL
) ENGINE=InnoDB`, table, mysqlMaxDigits)
}

func (mysqlDialect) HoldsID(id version.ID) bool { return id.Digits() <= mysqlMaxDigits }

func (mysqlDialect) IsUndefinedTable(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlNoSuchTable
}

func connectMySQL(rawURL, username, password string) (driver.Connector, error) {
	cfg, err := mysqlConfig(rawURL, username, password)
	if err != nil {
		return nil, err
	}
	return mysql.NewConnector(cfg)
}

// mysqlConfig accepts both native DSNs and mysql:// URLs.
func mysqlConfig(rawURL, username, password string) (*mysql.Config, error) {
	dsn := rawURL
	if strings.HasPrefix(rawURL, "mysql://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql url: %w", err)
		}
		dsn = fmt.Sprintf("tcp(%s)/%s", u.Host, strings.TrimPrefix(u.Path, "/"))
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		if u.User != nil {
			if username == "" {
				username = u.User.Username()
			}
			if p, ok := u.User.Password(); ok && password == "" {
				password = p
			}
		}
	}
	// Validate DSN early to provide actionable errors.
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if username != "" {
		cfg.User = username
	}
	if password != "" {
		cfg.Passwd = password
	}
	return cfg, nil
}
