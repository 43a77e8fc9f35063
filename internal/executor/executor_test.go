package executor

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"db_changelog_migrator/internal/config"
	"db_changelog_migrator/internal/db"
	"db_changelog_migrator/internal/logging"
	"db_changelog_migrator/internal/migerr"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		script    string
		delimiter string
		fullLine  bool
		want      []Chunk
		wantErr   error
	}{
		{
			name:      "statements and comments",
			script:    "-- create users\nCREATE TABLE users (\n  id INT\n);\n\nINSERT INTO users VALUES (1);\n",
			delimiter: ";",
			want: []Chunk{
				{Text: "-- create users", Comment: true},
				{Text: "CREATE TABLE users (\n  id INT\n)"},
				{Text: "INSERT INTO users VALUES (1)"},
			},
		},
		{
			name:      "full line delimiter keeps inline semicolons",
			script:    "CREATE PROCEDURE p AS BEGIN SELECT 1; END\nGO\n// done\n",
			delimiter: "GO",
			fullLine:  true,
			want: []Chunk{
				{Text: "CREATE PROCEDURE p AS BEGIN SELECT 1; END"},
				{Text: "// done", Comment: true},
			},
		},
		{
			name:      "delimiter directive",
			script:    "-- @DELIMITER $$\nCREATE TRIGGER t BEGIN UPDATE a SET x = 1; END$$\n-- @DELIMITER ;\nSELECT 1;\n",
			delimiter: ";",
			want: []Chunk{
				{Text: "-- @DELIMITER $$", Comment: true},
				{Text: "CREATE TRIGGER t BEGIN UPDATE a SET x = 1; END"},
				{Text: "-- @DELIMITER ;", Comment: true},
				{Text: "SELECT 1"},
			},
		},
		{
			name:      "windows line endings",
			script:    "SELECT 1;\r\nSELECT 2;\r\n",
			delimiter: ";",
			want:      []Chunk{{Text: "SELECT 1"}, {Text: "SELECT 2"}},
		},
		{
			name:      "empty",
			script:    "\n\n",
			delimiter: ";",
		},
		{
			name:      "missing terminator",
			script:    "SELECT 1;\nSELECT 2\n",
			delimiter: ";",
			wantErr:   migerr.ErrMissingTerminator,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Split(tt.script, tt.delimiter, tt.fullLine)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()

	opts := OptionsFrom(config.Environment{AutoCommit: true, FullLineDelimiter: true}, false)
	require.Equal(t, ";", opts.Delimiter)
	require.True(t, opts.StopOnError)
	require.True(t, opts.AutoCommit)
	require.True(t, opts.FullLineDelimiter)

	require.False(t, OptionsFrom(config.Environment{}, true).StopOnError)
}

func openConn(t *testing.T) *sql.Conn {
	t.Helper()

	driver, err := db.NewRegistry(nil).Resolve("sqlite", "")
	require.NoError(t, err)
	handle, err := driver.Open(filepath.Join(t.TempDir(), "exec.db"), "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })

	conn, err := handle.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func tableRows(t *testing.T, conn *sql.Conn, table string) int {
	t.Helper()

	var exists int
	require.NoError(t, conn.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&exists))
	if exists == 0 {
		return -1
	}
	var n int
	require.NoError(t, conn.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

const failingScript = `CREATE TABLE a (id INTEGER);
INSERT INTO a VALUES (1);
INSERT INTO missing VALUES (1);
INSERT INTO a VALUES (2);
`

func TestRunStopOnErrorRollsBack(t *testing.T) {
	t.Parallel()

	conn := openConn(t)
	var out bytes.Buffer
	exec := New(&out, logging.Discard(), Options{Delimiter: ";", StopOnError: true})

	res, err := exec.Run(context.Background(), conn, "2_fail.sql", failingScript)
	var execErr *migerr.ScriptExecutionError
	require.True(t, errors.As(err, &execErr))
	require.Equal(t, "2_fail.sql", execErr.Filename)
	require.Equal(t, "INSERT INTO missing VALUES (1)", execErr.Statement)
	require.Equal(t, 2, res.Statements)

	require.Equal(t, -1, tableRows(t, conn, "a"))
	require.Contains(t, out.String(), "CREATE TABLE a (id INTEGER)")
	require.Contains(t, out.String(), "Error executing: INSERT INTO missing VALUES (1)")
	require.NotContains(t, out.String(), "INSERT INTO a VALUES (2)")
}

func TestRunForceContinuesAndCommits(t *testing.T) {
	t.Parallel()

	conn := openConn(t)
	var out bytes.Buffer
	exec := New(&out, logging.Discard(), Options{Delimiter: ";", StopOnError: false})

	res, err := exec.Run(context.Background(), conn, "2_fail.sql", failingScript)
	require.NoError(t, err)
	require.Equal(t, Result{Statements: 3, Failed: 1}, res)
	require.False(t, res.Succeeded())
	require.Equal(t, 2, tableRows(t, conn, "a"))
}

func TestRunAutoCommitKeepsEarlierStatements(t *testing.T) {
	t.Parallel()

	conn := openConn(t)
	exec := New(nil, logging.Discard(), Options{Delimiter: ";", StopOnError: true, AutoCommit: true})

	_, err := exec.Run(context.Background(), conn, "2_fail.sql", failingScript)
	require.Error(t, err)
	require.Equal(t, 1, tableRows(t, conn, "a"))
}

func TestRunSendFullScript(t *testing.T) {
	t.Parallel()

	conn := openConn(t)
	var out bytes.Buffer
	exec := New(&out, logging.Discard(), Options{SendFullScript: true, RemoveCRs: true, StopOnError: true})

	res, err := exec.Run(context.Background(), conn, "1_full.sql", "CREATE TABLE b (\r\n  id INTEGER\r\n)")
	require.NoError(t, err)
	require.Equal(t, 1, res.Statements)
	require.NotContains(t, out.String(), "\r")
	require.Equal(t, 0, tableRows(t, conn, "b"))
}

func TestRunMissingTerminatorExecutesNothing(t *testing.T) {
	t.Parallel()

	conn := openConn(t)
	exec := New(nil, logging.Discard(), Options{Delimiter: ";", StopOnError: true})

	_, err := exec.Run(context.Background(), conn, "3_partial.sql", "CREATE TABLE c (id INTEGER);\nINSERT INTO c VALUES (1)")
	require.ErrorIs(t, err, migerr.ErrMissingTerminator)
	require.Equal(t, -1, tableRows(t, conn, "c"))
}
