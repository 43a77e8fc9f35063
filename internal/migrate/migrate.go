// Package migrate diffs the scripts on disk against the changelog and applies
// or undoes the outstanding changes in order.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"db_changelog_migrator/internal/changelog"
	"db_changelog_migrator/internal/config"
	"db_changelog_migrator/internal/db"
	"db_changelog_migrator/internal/executor"
	"db_changelog_migrator/internal/logging"
	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/script"
	"db_changelog_migrator/internal/version"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Result lists the changes a run applied or undid, in execution order.
type Result struct {
	Direction Direction `json:"direction"`
	Changes   []Change  `json:"changes"`
}

type Options struct {
	FS       afero.Fs
	Paths    config.Paths
	Env      config.Environment
	Registry *db.Registry
	// Force keeps executing a script after a failing statement.
	Force  bool
	Out    io.Writer
	Logger Logger
}

// Engine runs one invocation against one environment. It holds no state
// between calls other than the resolved driver.
type Engine struct {
	source    *script.Source
	store     *changelog.Store
	exec      *executor.Executor
	driver    *db.Driver
	env       config.Environment
	scriptDir string
	out       io.Writer
	logger    Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = db.NewRegistry(opts.Logger)
	}
	driver, err := opts.Registry.Resolve(opts.Env.Driver, opts.Env.DriverPath)
	if err != nil {
		return nil, err
	}
	return &Engine{
		source:    script.NewSource(opts.FS, opts.Env.ScriptCharset),
		store:     changelog.New(driver, opts.Env, opts.Logger),
		exec:      executor.New(opts.Out, opts.Logger, executor.OptionsFrom(opts.Env, opts.Force)),
		driver:    driver,
		env:       opts.Env,
		scriptDir: opts.Paths.Scripts,
		out:       opts.Out,
		logger:    opts.Logger,
	}, nil
}

func (e *Engine) Driver() *db.Driver { return e.driver }

// Ping checks the environment's database is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.driver.Ping(ctx, e.env.URL, e.env.Username, e.env.Password)
}

// state is the resolved view of disk and changelog for one operation.
type state struct {
	scripts []script.Script
	entries []changelog.Entry
	exists  bool
}

func (e *Engine) resolve(ctx context.Context) (*state, error) {
	scripts, err := e.source.List(e.scriptDir)
	if err != nil {
		return nil, err
	}
	st := &state{scripts: scripts, exists: e.store.Exists(ctx)}
	if !st.exists {
		e.logger.Debug("changelog absent, treating as empty", "table", e.store.Table())
		return st, nil
	}
	st.entries, err = e.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// pending returns scripts whose id has no changelog entry, keeping disk order.
func pending(scripts []script.Script, entries []changelog.Entry) []script.Script {
	applied := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		applied[entry.ID.String()] = struct{}{}
	}
	var out []script.Script
	for _, sc := range scripts {
		if _, ok := applied[sc.ID.String()]; !ok {
			out = append(out, sc)
		}
	}
	return out
}

// undoTargets returns the last steps entries, most recent first.
func undoTargets(entries []changelog.Entry, steps int) []changelog.Entry {
	if steps > len(entries) {
		steps = len(entries)
	}
	out := make([]changelog.Entry, 0, steps)
	for i := len(entries) - 1; i >= len(entries)-steps; i-- {
		out = append(out, entries[i])
	}
	return out
}

// Pending lists the scripts that Up would apply.
func (e *Engine) Pending(ctx context.Context) ([]script.Script, error) {
	st, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return pending(st.scripts, st.entries), nil
}

// Up applies pending scripts in ascending id order. steps <= 0 applies all of
// them. The first failing script aborts the run; nothing after it is applied
// or recorded.
func (e *Engine) Up(ctx context.Context, steps int) (Result, error) {
	st, err := e.resolve(ctx)
	if err != nil {
		return Result{Direction: DirectionUp}, err
	}
	todo := pending(st.scripts, st.entries)
	if steps > 0 && steps < len(todo) {
		todo = todo[:steps]
	}
	return e.applyAll(ctx, st, todo)
}

// Down undoes the most recently applied changes, newest first. steps <= 0
// undoes one.
func (e *Engine) Down(ctx context.Context, steps int) (Result, error) {
	if steps <= 0 {
		steps = 1
	}
	st, err := e.resolve(ctx)
	if err != nil {
		return Result{Direction: DirectionDown}, err
	}
	return e.undoAll(ctx, st, undoTargets(st.entries, steps))
}

// Version migrates up or down until target is the last applied change.
func (e *Engine) Version(ctx context.Context, target version.ID) (Result, error) {
	st, err := e.resolve(ctx)
	if err != nil {
		return Result{}, err
	}
	found := false
	for _, sc := range st.scripts {
		if sc.ID.Equal(target) {
			found = true
			break
		}
	}
	if !found {
		return Result{}, fmt.Errorf("%w %s", migerr.ErrUnknownVersion, target)
	}

	var current version.ID
	if n := len(st.entries); n > 0 {
		current = st.entries[n-1].ID
	}

	switch cmp := target.Cmp(current); {
	case cmp > 0:
		var todo []script.Script
		for _, sc := range pending(st.scripts, st.entries) {
			if target.Less(sc.ID) {
				break
			}
			todo = append(todo, sc)
		}
		return e.applyAll(ctx, st, todo)
	case cmp < 0:
		var targets []changelog.Entry
		for i := len(st.entries) - 1; i >= 0 && target.Less(st.entries[i].ID); i-- {
			targets = append(targets, st.entries[i])
		}
		return e.undoAll(ctx, st, targets)
	default:
		e.logger.Info("already at version", "version", target.String())
		return Result{Direction: DirectionUp}, nil
	}
}

// Bootstrap runs scripts/bootstrap.sql when the changelog does not exist yet.
// The bootstrap script is never recorded. It reports whether it ran.
func (e *Engine) Bootstrap(ctx context.Context) (bool, error) {
	if e.store.Exists(ctx) {
		e.logger.Info("changelog exists, skipping bootstrap", "table", e.store.Table())
		return false, nil
	}
	path, ok, err := e.source.Bootstrap(e.scriptDir)
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Info("no bootstrap script found", "dir", e.scriptDir)
		return false, nil
	}
	body, err := e.source.Read(path)
	if err != nil {
		return false, err
	}
	fmt.Fprintln(e.out, banner("Applying: "+script.BootstrapFile))
	if _, err := e.runScript(ctx, script.BootstrapFile, body.Forward); err != nil {
		return false, err
	}
	return true, nil
}

// ParseSteps reads an optional step count argument.
func ParseSteps(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		if err == nil {
			err = errors.New("must not be negative")
		}
		return 0, &migerr.ConfigurationError{Key: "steps", Err: fmt.Errorf("invalid step count %q: %w", arg, err)}
	}
	return n, nil
}

// banner renders "========== title ====...", padded with '=' to 80 columns.
func banner(title string) string {
	const (
		width = 80
		lead  = 10
	)
	if title != "" {
		title = " " + title + " "
	}
	pad := width - lead - len(title)
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat("=", lead) + title + strings.Repeat("=", pad)
}
