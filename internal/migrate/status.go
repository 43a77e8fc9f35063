package migrate

import (
	"context"
	"sort"

	"db_changelog_migrator/internal/version"
)

// Change is the merged view of one script and its changelog row.
type Change struct {
	ID          version.ID `json:"id"`
	Description string     `json:"description"`
	Filename    string     `json:"filename,omitempty"`
	AppliedAt   string     `json:"applied_at,omitempty"`
	Applied     bool       `json:"applied"`
	// Missing marks a changelog row whose script is no longer on disk.
	Missing bool `json:"missing,omitempty"`
}

// Status merges scripts and changelog rows ordered by id.
func (e *Engine) Status(ctx context.Context) ([]Change, error) {
	st, err := e.resolve(ctx)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(st.scripts))
	index := make(map[string]int, len(st.scripts))
	for _, sc := range st.scripts {
		index[sc.ID.String()] = len(changes)
		changes = append(changes, Change{ID: sc.ID, Description: sc.Description, Filename: sc.Filename})
	}
	for _, entry := range st.entries {
		if i, ok := index[entry.ID.String()]; ok {
			changes[i].Applied = true
			changes[i].AppliedAt = entry.AppliedAt
			continue
		}
		changes = append(changes, Change{
			ID:          entry.ID,
			Description: entry.Description,
			AppliedAt:   entry.AppliedAt,
			Applied:     true,
			Missing:     true,
		})
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].ID.Less(changes[j].ID) })
	return changes, nil
}
