// Package report renders engine results for the terminal.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pterm/pterm"

	"db_changelog_migrator/internal/migrate"
	"db_changelog_migrator/internal/script"
)

var (
	appliedMark = color.New(color.FgGreen).SprintFunc()
	pendingMark = color.New(color.FgYellow).SprintFunc()
	missingMark = color.New(color.FgRed).SprintFunc()
)

// StatusTable renders the merged status view as a table.
func StatusTable(changes []migrate.Change) (string, error) {
	data := pterm.TableData{{"ID", "Applied At", "Description", "State"}}
	for _, c := range changes {
		data = append(data, []string{c.ID.String(), appliedAt(c), c.Description, state(c)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func appliedAt(c migrate.Change) string {
	if !c.Applied {
		return "...pending..."
	}
	return c.AppliedAt
}

func state(c migrate.Change) string {
	switch {
	case c.Missing:
		return missingMark("missing script")
	case c.Applied:
		return appliedMark("applied")
	default:
		return pendingMark("pending")
	}
}

// Pending writes one line per pending script.
func Pending(w io.Writer, scripts []script.Script) {
	if len(scripts) == 0 {
		fmt.Fprintln(w, appliedMark("No pending changes."))
		return
	}
	for _, sc := range scripts {
		fmt.Fprintf(w, "%s %s %s\n", pendingMark("pending"), sc.ID, sc.Description)
	}
}

// Summary writes what a run applied or undid.
func Summary(w io.Writer, res migrate.Result) {
	if len(res.Changes) == 0 {
		fmt.Fprintln(w, "Nothing to do.")
		return
	}
	verb := "Applied"
	if res.Direction == migrate.DirectionDown {
		verb = "Undid"
	}
	for _, c := range res.Changes {
		fmt.Fprintf(w, "%s %s %s\n", appliedMark(verb), c.ID, c.Description)
	}
	fmt.Fprintf(w, "%s %d change(s)\n", verb, len(res.Changes))
}
