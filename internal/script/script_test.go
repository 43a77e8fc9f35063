package script

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/version"
)

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/work/scripts", 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func TestListOrdersAndFilters(t *testing.T) {
	t.Parallel()

	fs := newFs(t, map[string]string{
		"/work/scripts/20240102000000_add_index.sql":    "",
		"/work/scripts/20240101000000_create_users.sql": "",
		"/work/scripts/bootstrap.sql":                   "",
		"/work/scripts/README.md":                       "",
		"/work/scripts/20240103000000_notes.txt":        "",
	})
	require.NoError(t, fs.MkdirAll("/work/scripts/archive.sql", 0o755))

	scripts, err := NewSource(fs, "").List("/work/scripts")
	require.NoError(t, err)
	require.Len(t, scripts, 2)

	require.Equal(t, "20240101000000", scripts[0].ID.String())
	require.Equal(t, "create users", scripts[0].Description)
	require.Equal(t, "20240101000000_create_users.sql", scripts[0].Filename)
	require.Equal(t, "/work/scripts/20240101000000_create_users.sql", scripts[0].Path)
	require.Equal(t, "20240102000000", scripts[1].ID.String())
	require.Equal(t, "add index", scripts[1].Description)
}

func TestListMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewSource(afero.NewMemMapFs(), "").List("/nowhere")
	var dirErr *migerr.DirectoryNotFoundError
	require.True(t, errors.As(err, &dirErr))
	require.Equal(t, "/nowhere", dirErr.Path)
}

func TestListBadFilename(t *testing.T) {
	t.Parallel()

	fs := newFs(t, map[string]string{"/work/scripts/initial_schema.sql": ""})
	_, err := NewSource(fs, "").List("/work/scripts")

	var parseErr *migerr.FilenameParseError
	require.True(t, errors.As(err, &parseErr))
	require.Equal(t, "initial_schema.sql", parseErr.Filename)
}

func TestParseFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		desc string
	}{
		{name: "1_init.sql", id: "1", desc: "init"},
		{name: "20240101120000_add_users_table.sql", id: "20240101120000", desc: "add users table"},
		{name: "123456789012345678901234567890_big.sql", id: "123456789012345678901234567890", desc: "big"},
		{name: "7.sql", id: "7", desc: ""},
		{name: "5_v1.2_fix.sql", id: "5", desc: "v1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sc, err := ParseFilename(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.id, sc.ID.String())
			require.Equal(t, tt.desc, sc.Description)
		})
	}
}

func TestFindAndBootstrap(t *testing.T) {
	t.Parallel()

	fs := newFs(t, map[string]string{
		"/work/scripts/1_init.sql":    "",
		"/work/scripts/2_users.sql":   "",
		"/work/scripts/bootstrap.sql": "CREATE TABLE CHANGELOG (ID NUMERIC);",
	})
	src := NewSource(fs, "")

	sc, ok, err := src.Find("/work/scripts", version.MustParse("002"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2_users.sql", sc.Filename)

	_, ok, err = src.Find("/work/scripts", version.MustParse("3"))
	require.NoError(t, err)
	require.False(t, ok)

	path, ok, err := src.Bootstrap("/work/scripts")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/work/scripts/bootstrap.sql", path)
}

func TestSplitUndo(t *testing.T) {
	t.Parallel()

	body := Split("CREATE TABLE a (id INT);\n\n-- //@UNDO\nDROP TABLE a;\n")
	require.True(t, body.HasUndo)
	require.Equal(t, "CREATE TABLE a (id INT);\n\n", body.Forward)
	require.Equal(t, "DROP TABLE a;\n", body.Undo)

	body = Split("CREATE TABLE b (id INT);\n-- //@undo is mentioned here\n")
	require.False(t, body.HasUndo)
	require.Equal(t, "CREATE TABLE b (id INT);\n-- //@undo is mentioned here\n", body.Forward)
}

func TestReadDecodesCharset(t *testing.T) {
	t.Parallel()

	fs := newFs(t, nil)
	require.NoError(t, afero.WriteFile(fs, "/work/scripts/1_latin.sql", []byte("INSERT INTO t VALUES ('caf\xe9');\n"), 0o644))

	body, err := NewSource(fs, "ISO-8859-1").Read("/work/scripts/1_latin.sql")
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO t VALUES ('café');\n", body.Forward)

	_, err = NewSource(fs, "no-such-charset").Read("/work/scripts/1_latin.sql")
	var cfgErr *migerr.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestCreate(t *testing.T) {
	t.Parallel()

	src := NewSource(afero.NewMemMapFs(), "")
	now := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	sc, err := src.Create("/work/scripts", "  add  orders table ", now)
	require.NoError(t, err)
	require.Equal(t, "20240305143000_add_orders_table.sql", sc.Filename)
	require.Equal(t, "add orders table", sc.Description)
	require.Equal(t, "20240305143000", sc.ID.String())

	scripts, err := src.List("/work/scripts")
	require.NoError(t, err)
	require.Len(t, scripts, 1)

	body, err := src.Read(sc.Path)
	require.NoError(t, err)
	require.True(t, body.HasUndo)
	require.Contains(t, body.Forward, "-- // add orders table")

	_, err = src.Create("/work/scripts", "add orders table", now)
	require.Error(t, err)

	_, err = src.Create("/work/scripts", "   ", now)
	require.Error(t, err)

	gmtPlus2 := time.FixedZone("GMT+2", 2*3600)
	sc, err = src.Create("/work/scripts", "late night", now.In(gmtPlus2))
	require.NoError(t, err)
	require.Equal(t, "20240305163000_late_night.sql", sc.Filename)
}
