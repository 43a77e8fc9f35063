// Package changelog reads and writes the table that records applied changes.
package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"db_changelog_migrator/internal/config"
	"db_changelog_migrator/internal/db"
	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/version"
)

// TimestampLayout is the text form stored in APPLIED_AT.
const TimestampLayout = "2006-01-02 15:04:05"

// Entry is one changelog row. AppliedAt is empty until the row is persisted.
type Entry struct {
	ID          version.ID `json:"id"`
	AppliedAt   string     `json:"applied_at,omitempty"`
	Description string     `json:"description"`
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Store talks to the changelog table. Every call opens and closes its own
// connection.
type Store struct {
	driver *db.Driver
	env    config.Environment
	logger Logger
	now    func() time.Time
}

func New(driver *db.Driver, env config.Environment, logger Logger) *Store {
	return &Store{driver: driver, env: env, logger: logger, now: time.Now}
}

func (s *Store) Table() string { return s.env.Changelog }

func (s *Store) open() (*sql.DB, error) {
	return s.driver.Open(s.env.URL, s.env.Username, s.env.Password)
}

// Exists checks the table with a select that returns no rows. Any failure,
// including a failure to connect, reads as "no changelog yet".
func (s *Store) Exists(ctx context.Context) bool {
	conn, err := s.open()
	if err != nil {
		s.logger.Debug("changelog check could not connect", "table", s.Table(), "error", err)
		return false
	}
	defer conn.Close()

	stmt := fmt.Sprintf("SELECT ID, APPLIED_AT, DESCRIPTION FROM %s WHERE 1 = 0", s.Table())
	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		if s.driver.Dialect.IsUndefinedTable(err) {
			s.logger.Debug("changelog table not found", "table", s.Table())
		} else {
			s.logger.Debug("changelog check failed", "table", s.Table(), "error", err)
		}
		return false
	}
	defer rows.Close()
	return rows.Err() == nil
}

// ReadAll returns every row ordered by ID ascending.
func (s *Store) ReadAll(ctx context.Context) ([]Entry, error) {
	conn, err := s.open()
	if err != nil {
		return nil, &migerr.ChangelogReadError{Table: s.Table(), Err: err}
	}
	defer conn.Close()

	stmt := fmt.Sprintf("SELECT ID, APPLIED_AT, DESCRIPTION FROM %s ORDER BY ID", s.Table())
	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &migerr.ChangelogReadError{Table: s.Table(), Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			rawID     string
			appliedAt sql.NullString
			desc      sql.NullString
		)
		if err := rows.Scan(&rawID, &appliedAt, &desc); err != nil {
			return nil, &migerr.ChangelogReadError{Table: s.Table(), Err: err}
		}
		id, err := version.Parse(rawID)
		if err != nil {
			return nil, &migerr.ChangelogReadError{Table: s.Table(), Err: fmt.Errorf("row id %q: %w", rawID, err)}
		}
		entries = append(entries, Entry{ID: id, AppliedAt: appliedAt.String, Description: desc.String})
	}
	if err := rows.Err(); err != nil {
		return nil, &migerr.ChangelogReadError{Table: s.Table(), Err: err}
	}
	return entries, nil
}

// Append stamps entry with the current time in the configured zone and inserts it.
func (s *Store) Append(ctx context.Context, entry *Entry) error {
	entry.AppliedAt = s.now().In(s.location()).Format(TimestampLayout)

	conn, err := s.open()
	if err != nil {
		return &migerr.ChangelogWriteError{Table: s.Table(), ID: entry.ID.String(), Err: err}
	}
	defer conn.Close()

	d := s.driver.Dialect
	stmt := fmt.Sprintf("INSERT INTO %s (ID, APPLIED_AT, DESCRIPTION) VALUES (%s, %s, %s)",
		s.Table(), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	if _, err := conn.ExecContext(ctx, stmt, entry.ID.String(), entry.AppliedAt, entry.Description); err != nil {
		return &migerr.ChangelogWriteError{Table: s.Table(), ID: entry.ID.String(), Err: err}
	}
	return nil
}

// Remove deletes the row for id after its change has been undone.
func (s *Store) Remove(ctx context.Context, id version.ID) error {
	conn, err := s.open()
	if err != nil {
		return &migerr.ChangelogWriteError{Table: s.Table(), ID: id.String(), Err: err}
	}
	defer conn.Close()

	stmt := fmt.Sprintf("DELETE FROM %s WHERE ID = %s", s.Table(), s.driver.Dialect.Placeholder(1))
	if _, err := conn.ExecContext(ctx, stmt, id.String()); err != nil {
		return &migerr.ChangelogWriteError{Table: s.Table(), ID: id.String(), Err: err}
	}
	return nil
}

// Create issues the dialect's CREATE TABLE for the changelog.
func (s *Store) Create(ctx context.Context) error {
	conn, err := s.open()
	if err != nil {
		return &migerr.ChangelogWriteError{Table: s.Table(), Err: err}
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, s.driver.Dialect.CreateChangelog(s.Table())); err != nil {
		return &migerr.ChangelogWriteError{Table: s.Table(), Err: fmt.Errorf("create table: %w", err)}
	}
	s.logger.Info("changelog table created", "table", s.Table())
	return nil
}

func (s *Store) location() *time.Location {
	if s.env.TimeZone == nil {
		return time.UTC
	}
	return s.env.TimeZone
}
