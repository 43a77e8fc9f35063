// Package executor runs the statements of a single script against a connection.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"db_changelog_migrator/internal/config"
	"db_changelog_migrator/internal/migerr"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Conn is satisfied by *sql.Conn and *sql.DB.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Options struct {
	Delimiter         string
	FullLineDelimiter bool
	SendFullScript    bool
	RemoveCRs         bool
	AutoCommit        bool
	// StopOnError aborts the script and rolls back on the first failing
	// statement. When false, failures are reported and execution continues.
	StopOnError bool
}

// OptionsFrom maps environment settings onto executor options. force turns
// stop-on-error off.
func OptionsFrom(env config.Environment, force bool) Options {
	delim := env.Delimiter
	if delim == "" {
		delim = config.DefaultDelimiter
	}
	return Options{
		Delimiter:         delim,
		FullLineDelimiter: env.FullLineDelimiter,
		SendFullScript:    env.SendFullScript,
		RemoveCRs:         env.RemoveCRs,
		AutoCommit:        env.AutoCommit,
		StopOnError:       !force,
	}
}

// Result counts the statements that ran and those that failed in force mode.
type Result struct {
	Statements int
	Failed     int
}

func (r Result) Succeeded() bool { return r.Failed == 0 }

type Executor struct {
	out    io.Writer
	logger Logger
	opts   Options
}

func New(out io.Writer, logger Logger, opts Options) *Executor {
	if out == nil {
		out = io.Discard
	}
	if opts.Delimiter == "" {
		opts.Delimiter = config.DefaultDelimiter
	}
	return &Executor{out: out, logger: logger, opts: opts}
}

func (e *Executor) Options() Options { return e.opts }

// Run executes script on conn. Unless auto-commit is on, all statements share
// one transaction that is committed at the end, or rolled back when a statement
// fails under stop-on-error.
func (e *Executor) Run(ctx context.Context, conn Conn, name, script string) (Result, error) {
	if e.opts.RemoveCRs {
		script = strings.ReplaceAll(script, "\r\n", "\n")
	}

	var chunks []Chunk
	if e.opts.SendFullScript {
		if body := strings.TrimSpace(script); body != "" {
			chunks = []Chunk{{Text: script}}
		}
	} else {
		var err error
		chunks, err = Split(script, e.opts.Delimiter, e.opts.FullLineDelimiter)
		if err != nil {
			fmt.Fprintf(e.out, "Error executing: %s.  Cause: %v\n", name, err)
			return Result{}, &migerr.ScriptExecutionError{Filename: name, Err: err}
		}
	}

	var (
		target execer = conn
		tx     *sql.Tx
	)
	if !e.opts.AutoCommit {
		var err error
		tx, err = conn.BeginTx(ctx, nil)
		if err != nil {
			return Result{}, &migerr.ScriptExecutionError{Filename: name, Err: fmt.Errorf("begin transaction: %w", err)}
		}
		target = tx
	}

	var res Result
	for _, chunk := range chunks {
		fmt.Fprintln(e.out, chunk.Text)
		if chunk.Comment {
			continue
		}
		if _, err := target.ExecContext(ctx, chunk.Text); err != nil {
			fmt.Fprintf(e.out, "Error executing: %s.  Cause: %v\n", chunk.Text, err)
			if e.opts.StopOnError {
				if tx != nil {
					if rbErr := tx.Rollback(); rbErr != nil {
						e.logger.Error("rollback failed", "script", name, "error", rbErr)
					}
				}
				return res, &migerr.ScriptExecutionError{Filename: name, Statement: chunk.Text, Err: err}
			}
			e.logger.Error("statement failed, continuing", "script", name, "error", err)
			res.Failed++
			continue
		}
		res.Statements++
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return res, &migerr.ScriptExecutionError{Filename: name, Err: fmt.Errorf("commit: %w", err)}
		}
	}
	e.logger.Info("script executed", "script", name, "statements", res.Statements, "failed", res.Failed)
	return res, nil
}
