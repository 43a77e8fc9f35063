package migrate

import (
	"context"
	"errors"
	"fmt"

	"db_changelog_migrator/internal/changelog"
	"db_changelog_migrator/internal/executor"
	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/script"
)

// applyAll runs todo in order and records each script right after it commits.
// Ids the changelog cannot store fail the run before anything executes.
func (e *Engine) applyAll(ctx context.Context, st *state, todo []script.Script) (Result, error) {
	res := Result{Direction: DirectionUp}
	if len(todo) == 0 {
		e.logger.Info("no pending changes")
		return res, nil
	}
	for _, sc := range todo {
		if !e.driver.Dialect.HoldsID(sc.ID) {
			return res, &migerr.ChangelogWriteError{
				Table: e.store.Table(),
				ID:    sc.ID.String(),
				Err:   fmt.Errorf("%w of a %s changelog (script %s)", migerr.ErrIDOutOfRange, e.driver.Dialect.Name(), sc.Filename),
			}
		}
	}

	for _, sc := range todo {
		body, err := e.source.Read(sc.Path)
		if err != nil {
			return res, err
		}
		fmt.Fprintln(e.out, banner("Applying: "+sc.Filename))
		if _, err := e.runScript(ctx, sc.Filename, body.Forward); err != nil {
			e.logger.Error("change failed, aborting", "id", sc.ID.String(), "script", sc.Filename, "error", err)
			return res, err
		}

		entry := changelog.Entry{ID: sc.ID, Description: sc.Description}
		if err := e.record(ctx, st, &entry); err != nil {
			e.logger.Error("change applied but not recorded, it will be applied again on the next run",
				"id", sc.ID.String(), "script", sc.Filename, "table", e.store.Table(), "error", err)
			return res, err
		}
		e.logger.Info("change applied", "id", sc.ID.String(), "script", sc.Filename)
		res.Changes = append(res.Changes, Change{
			ID:          sc.ID,
			Description: sc.Description,
			Filename:    sc.Filename,
			AppliedAt:   entry.AppliedAt,
			Applied:     true,
		})
	}
	return res, nil
}

// record appends entry, creating the changelog first if it still does not
// exist. The existence check is repeated because the script just applied may
// have created the table itself.
func (e *Engine) record(ctx context.Context, st *state, entry *changelog.Entry) error {
	if !st.exists {
		st.exists = e.store.Exists(ctx)
	}
	if !st.exists {
		if !e.env.AutoCreateChangelog {
			return &migerr.ChangelogWriteError{
				Table: e.store.Table(),
				ID:    entry.ID.String(),
				Err:   errors.New("changelog table does not exist and auto_create_changelog is off"),
			}
		}
		if err := e.store.Create(ctx); err != nil {
			return err
		}
		st.exists = true
	}
	return e.store.Append(ctx, entry)
}

// undoAll checks every target has an undo section, then undoes them in order
// and removes their rows.
func (e *Engine) undoAll(ctx context.Context, st *state, targets []changelog.Entry) (Result, error) {
	res := Result{Direction: DirectionDown}
	if len(targets) == 0 {
		e.logger.Info("no applied changes to undo")
		return res, nil
	}

	byID := make(map[string]script.Script, len(st.scripts))
	for _, sc := range st.scripts {
		byID[sc.ID.String()] = sc
	}

	type undo struct {
		entry  changelog.Entry
		script script.Script
		sql    string
	}
	plan := make([]undo, 0, len(targets))
	for _, entry := range targets {
		sc, ok := byID[entry.ID.String()]
		if !ok {
			return res, &migerr.UndoScriptMissingError{ID: entry.ID.String()}
		}
		body, err := e.source.Read(sc.Path)
		if err != nil {
			return res, err
		}
		if !body.HasUndo {
			return res, &migerr.UndoScriptMissingError{ID: entry.ID.String(), Filename: sc.Filename}
		}
		plan = append(plan, undo{entry: entry, script: sc, sql: body.Undo})
	}

	for _, step := range plan {
		fmt.Fprintln(e.out, banner("Undoing: "+step.script.Filename))
		if _, err := e.runScript(ctx, step.script.Filename, step.sql); err != nil {
			e.logger.Error("undo failed, aborting", "id", step.entry.ID.String(), "script", step.script.Filename, "error", err)
			return res, err
		}

		if !e.store.Exists(ctx) {
			e.logger.Info("changelog removed by undo, stopping", "id", step.entry.ID.String(), "table", e.store.Table())
			res.Changes = append(res.Changes, undoneChange(step.entry, step.script))
			return res, nil
		}
		if err := e.store.Remove(ctx, step.entry.ID); err != nil {
			e.logger.Error("change undone but still recorded", "id", step.entry.ID.String(), "table", e.store.Table(), "error", err)
			return res, err
		}
		e.logger.Info("change undone", "id", step.entry.ID.String(), "script", step.script.Filename)
		res.Changes = append(res.Changes, undoneChange(step.entry, step.script))
	}
	return res, nil
}

func undoneChange(entry changelog.Entry, sc script.Script) Change {
	return Change{ID: entry.ID, Description: entry.Description, Filename: sc.Filename}
}

// runScript executes sql on a connection opened for this script alone.
func (e *Engine) runScript(ctx context.Context, name, sql string) (executor.Result, error) {
	handle, err := e.driver.Open(e.env.URL, e.env.Username, e.env.Password)
	if err != nil {
		return executor.Result{}, &migerr.ScriptExecutionError{Filename: name, Err: fmt.Errorf("open connection: %w", err)}
	}
	defer handle.Close()

	conn, err := handle.Conn(ctx)
	if err != nil {
		return executor.Result{}, &migerr.ScriptExecutionError{Filename: name, Err: fmt.Errorf("open connection: %w", err)}
	}
	defer conn.Close()

	return e.exec.Run(ctx, conn, name, sql)
}
