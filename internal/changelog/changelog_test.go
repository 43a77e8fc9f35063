package changelog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"db_changelog_migrator/internal/config"
	"db_changelog_migrator/internal/db"
	"db_changelog_migrator/internal/logging"
	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/version"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	driver, err := db.NewRegistry(nil).Resolve("sqlite", "")
	require.NoError(t, err)

	zone, err := config.ParseTimeZone("GMT+2:00")
	require.NoError(t, err)

	env := config.Environment{
		Driver:    "sqlite",
		URL:       filepath.Join(t.TempDir(), "changelog.db"),
		Changelog: "CHANGELOG",
		TimeZone:  zone,
	}
	store := New(driver, env, logging.Discard())
	store.now = func() time.Time { return time.Date(2024, 3, 1, 22, 30, 15, 0, time.UTC) }
	return store
}

func TestStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	require.False(t, store.Exists(ctx))
	require.NoError(t, store.Create(ctx))
	require.True(t, store.Exists(ctx))

	entries, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	second := &Entry{ID: version.MustParse("20240102000000"), Description: "add index"}
	first := &Entry{ID: version.MustParse("20240101000000"), Description: "create users"}
	require.NoError(t, store.Append(ctx, second))
	require.NoError(t, store.Append(ctx, first))
	require.Equal(t, "2024-03-02 00:30:15", first.AppliedAt)

	entries, err = store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].ID.Equal(first.ID))
	require.Equal(t, "create users", entries[0].Description)
	require.Equal(t, "2024-03-02 00:30:15", entries[0].AppliedAt)
	require.True(t, entries[1].ID.Equal(second.ID))

	require.NoError(t, store.Remove(ctx, second.ID))
	entries, err = store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "20240101000000", entries[0].ID.String())
}

func TestStoreMissingTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	_, err := store.ReadAll(ctx)
	var readErr *migerr.ChangelogReadError
	require.True(t, errors.As(err, &readErr))
	require.Equal(t, "CHANGELOG", readErr.Table)

	err = store.Append(ctx, &Entry{ID: version.MustParse("1"), Description: "init"})
	var writeErr *migerr.ChangelogWriteError
	require.True(t, errors.As(err, &writeErr))
	require.Equal(t, "1", writeErr.ID)
}

func TestStoreUnreachableDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	store.env.URL = filepath.Join(t.TempDir(), "missing", "dir", "app.db")

	require.False(t, store.Exists(ctx))
	_, err := store.ReadAll(ctx)
	var readErr *migerr.ChangelogReadError
	require.True(t, errors.As(err, &readErr))
}
