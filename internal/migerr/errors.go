// Package migerr holds the error types surfaced by the migration engine. Every
// type carries enough context (file, table, statement) for the operator to act
// on it and unwraps to the underlying cause.
package migerr

import (
	"errors"
	"fmt"
)

// DirectoryNotFoundError is returned when the script directory is missing or unreadable.
type DirectoryNotFoundError struct {
	Path string
	Err  error
}

func (e *DirectoryNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s does not exist: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s does not exist", e.Path)
}

func (e *DirectoryNotFoundError) Unwrap() error { return e.Err }

// FilenameParseError is returned when a script filename does not start with an integer version.
type FilenameParseError struct {
	Filename string
	Err      error
}

func (e *FilenameParseError) Error() string {
	return fmt.Sprintf("parse change from file %s: %v", e.Filename, e.Err)
}

func (e *FilenameParseError) Unwrap() error { return e.Err }

// ChangelogReadError wraps failures querying an existing changelog table.
type ChangelogReadError struct {
	Table string
	Err   error
}

func (e *ChangelogReadError) Error() string {
	return fmt.Sprintf("read changelog %s: %v", e.Table, e.Err)
}

func (e *ChangelogReadError) Unwrap() error { return e.Err }

// ChangelogWriteError wraps failures writing (or removing) a changelog row.
// When returned after a successful apply, the schema change is already committed.
type ChangelogWriteError struct {
	Table string
	ID    string
	Err   error
}

func (e *ChangelogWriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("write changelog %s for %s: %v", e.Table, e.ID, e.Err)
	}
	return fmt.Sprintf("write changelog %s: %v", e.Table, e.Err)
}

func (e *ChangelogWriteError) Unwrap() error { return e.Err }

// DriverLoadError is returned when a database driver cannot be located or instantiated.
type DriverLoadError struct {
	Driver string
	Path   string
	Err    error
}

func (e *DriverLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load driver %q from %s: %v", e.Driver, e.Path, e.Err)
	}
	return fmt.Sprintf("load driver %q: %v", e.Driver, e.Err)
}

func (e *DriverLoadError) Unwrap() error { return e.Err }

// ScriptExecutionError is returned when a script's statements cannot be applied.
type ScriptExecutionError struct {
	Filename  string
	Statement string
	Err       error
}

func (e *ScriptExecutionError) Error() string {
	switch {
	case e.Filename != "" && e.Statement != "":
		return fmt.Sprintf("execute %s: %v (statement: %s)", e.Filename, e.Err, e.Statement)
	case e.Filename != "":
		return fmt.Sprintf("execute %s: %v", e.Filename, e.Err)
	case e.Statement != "":
		return fmt.Sprintf("execute statement: %v (statement: %s)", e.Err, e.Statement)
	default:
		return fmt.Sprintf("execute script: %v", e.Err)
	}
}

func (e *ScriptExecutionError) Unwrap() error { return e.Err }

// UndoScriptMissingError is returned when a rollback targets a change without an undo script.
type UndoScriptMissingError struct {
	ID       string
	Filename string
}

func (e *UndoScriptMissingError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("no script found for applied change %s", e.ID)
	}
	return fmt.Sprintf("no undo section in %s for change %s", e.Filename, e.ID)
}

// ConfigurationError is returned for a missing or invalid environment configuration.
type ConfigurationError struct {
	Path string
	Key  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Key != "" && e.Path != "":
		return fmt.Sprintf("environment %s: %s: %v", e.Path, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("configuration %s: %v", e.Key, e.Err)
	case e.Path != "":
		return fmt.Sprintf("environment %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("configuration: %v", e.Err)
	}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrMissingTerminator is reported for trailing SQL that never reached a delimiter.
var ErrMissingTerminator = errors.New("line missing end-of-line terminator")

// ErrIDOutOfRange is reported for a script id the changelog ID column cannot store exactly.
var ErrIDOutOfRange = errors.New("id does not fit the changelog ID column")

// ErrUnknownVersion is reported when a target version has no script on disk.
var ErrUnknownVersion = errors.New("no migration script for version")
