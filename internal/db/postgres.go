package db

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"db_changelog_migrator/internal/version"
)

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) CreateChangelog(table string) string {
	return fmt.Sprintf(`CREATE TABLE %s (
	ID NUMERIC NOT NULL PRIMARY KEY,
	APPLIED_AT VARCHAR(25) NOT NULL,
	DESCRIPTION VARCHAR(255) NOT NULL
)`, table)
}

// HoldsID is always true: an unconstrained NUMERIC has no precision limit.
func (postgresDialect) HoldsID(version.ID) bool { return true }

func (postgresDialect) IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UndefinedTable || pgErr.Code == pgerrcode.InvalidSchemaName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UndefinedTable || string(pqErr.Code) == pgerrcode.InvalidSchemaName
	}
	return false
}

func connectPgx(rawURL, username, password string) (driver.Connector, error) {
	cfg, err := pgx.ParseConfig(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres url: %w", err)
	}
	if username != "" {
		cfg.User = username
	}
	if password != "" {
		cfg.Password = password
	}
	return stdlib.GetConnector(*cfg), nil
}

func connectPq(rawURL, username, password string) (driver.Connector, error) {
	return pq.NewConnector(pqDSN(rawURL, username, password))
}

// pqDSN merges credentials into either URL or key=value connection strings.
func pqDSN(rawURL, username, password string) string {
	if username == "" && password == "" {
		return rawURL
	}
	if strings.HasPrefix(rawURL, "postgres://") || strings.HasPrefix(rawURL, "postgresql://") {
		u, err := url.Parse(rawURL)
		if err == nil {
			user, pass := username, password
			if u.User != nil {
				if user == "" {
					user = u.User.Username()
				}
				if p, ok := u.User.Password(); ok && pass == "" {
					pass = p
				}
			}
			u.User = url.UserPassword(user, pass)
			return u.String()
		}
	}
	var b strings.Builder
	b.WriteString(rawURL)
	if username != "" {
		fmt.Fprintf(&b, " user='%s'", escapeKV(username))
	}
	if password != "" {
		fmt.Fprintf(&b, " password='%s'", escapeKV(password))
	}
	return strings.TrimSpace(b.String())
}

func escapeKV(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
