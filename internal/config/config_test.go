package config

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/secret"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	paths, err := ResolvePaths("/work")
	require.NoError(t, err)
	return paths
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestResolvePaths(t *testing.T) {
	paths := testPaths(t)
	require.Equal(t, "/work", paths.Base)
	require.Equal(t, "/work/scripts", paths.Scripts)
	require.Equal(t, "/work/environments", paths.Environments)
	require.Equal(t, "/work/drivers", paths.Drivers)
	require.Equal(t, "/work/environments/test.properties", paths.EnvironmentFile("test"))
}

func TestLoadMissingEnvironment(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, testPaths(t), "production")

	var cfgErr *migerr.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "/work/environments/production.properties", cfgErr.Path)
}

func TestLoadDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := testPaths(t)
	writeFile(t, fs, paths.EnvironmentFile("development"), "driver=sqlite\nurl=file:dev.db\n")

	cfg, err := Load(fs, paths, "development")
	require.NoError(t, err)
	require.Equal(t, "development", cfg.Name)
	require.Equal(t, "sqlite", cfg.Driver)
	require.Equal(t, "file:dev.db", cfg.URL)
	require.Equal(t, DefaultChangelogTable, cfg.Changelog)
	require.Equal(t, DefaultDelimiter, cfg.Delimiter)
	require.Equal(t, paths.Drivers, cfg.DriverPath)
	require.True(t, cfg.AutoCreateChangelog)
	require.False(t, cfg.AutoCommit)
	require.False(t, cfg.FullLineDelimiter)

	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.TimeZone).Zone()
	require.Equal(t, 0, offset)
}

func TestLoadAllKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := testPaths(t)
	writeFile(t, fs, paths.EnvironmentFile("staging"), `driver=postgres
url=postgres://db.internal:5432/app
username=app
password=secret
driver_path=/opt/drivers
changelog=audit.CHANGES
time_zone=GMT-5
delimiter=GO
full_line_delimiter=true
send_full_script=true
remove_crs=true
auto_commit=true
script_char_set=ISO-8859-1
auto_create_changelog=false
`)

	cfg, err := Load(fs, paths, "staging")
	require.NoError(t, err)
	require.Equal(t, "app", cfg.Username)
	require.Equal(t, "secret", cfg.Password)
	require.Equal(t, "/opt/drivers", cfg.DriverPath)
	require.Equal(t, "audit.CHANGES", cfg.Changelog)
	require.Equal(t, "GO", cfg.Delimiter)
	require.True(t, cfg.FullLineDelimiter)
	require.True(t, cfg.SendFullScript)
	require.True(t, cfg.RemoveCRs)
	require.True(t, cfg.AutoCommit)
	require.False(t, cfg.AutoCreateChangelog)
	require.Equal(t, "ISO-8859-1", cfg.ScriptCharset)

	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.TimeZone).Zone()
	require.Equal(t, -5*3600, offset)
}

func TestLoadEnvOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := testPaths(t)
	writeFile(t, fs, paths.EnvironmentFile("development"), "driver=sqlite\nurl=file:dev.db\n")
	t.Setenv("MIGRATIONS_URL", "file:override.db")

	cfg, err := Load(fs, paths, "development")
	require.NoError(t, err)
	require.Equal(t, "file:override.db", cfg.URL)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "MIGRATIONS_PASSWORD"
	_, set := os.LookupEnv(key)
	require.False(t, set)
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	fs := afero.NewMemMapFs()
	paths := testPaths(t)
	writeFile(t, fs, paths.EnvironmentFile("development"), "driver=sqlite\nurl=file:dev.db\n")
	writeFile(t, fs, filepath.Join(paths.Environments, ".env"), key+"=from-dotenv\n")

	cfg, err := Load(fs, paths, "development")
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Password)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{name: "missing driver", content: "url=file:dev.db\n", key: "driver"},
		{name: "missing url", content: "driver=sqlite\n", key: "url"},
		{name: "bad changelog", content: "driver=sqlite\nurl=x\nchangelog=drop table;\n", key: "changelog"},
		{name: "bad time zone", content: "driver=sqlite\nurl=x\ntime_zone=Mars/Olympus\n", key: "time_zone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			paths := testPaths(t)
			writeFile(t, fs, paths.EnvironmentFile("development"), tt.content)

			_, err := Load(fs, paths, "development")
			var cfgErr *migerr.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			require.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestParseTimeZone(t *testing.T) {
	tests := []struct {
		input  string
		offset int
	}{
		{input: "", offset: 0},
		{input: "UTC", offset: 0},
		{input: "GMT+0:00", offset: 0},
		{input: "GMT+5:30", offset: 5*3600 + 30*60},
		{input: "GMT-08:00", offset: -8 * 3600},
		{input: "utc+2", offset: 2 * 3600},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			loc, err := ParseTimeZone(tt.input)
			require.NoError(t, err)
			_, offset := time.Date(2024, 6, 1, 12, 0, 0, 0, loc).Zone()
			require.Equal(t, tt.offset, offset)
		})
	}

	_, err := ParseTimeZone("GMT+25")
	require.Error(t, err)
}

func TestLoadSealedPassword(t *testing.T) {
	encodedKey := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	key, err := secret.ParseKey(encodedKey)
	require.NoError(t, err)
	sealed, err := secret.Seal(key, "hunter2")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	paths := testPaths(t)
	writeFile(t, fs, paths.EnvironmentFile("development"), "driver=sqlite\nurl=file:dev.db\npassword="+sealed+"\n")

	t.Setenv(secret.KeyEnv, "")
	_, err = Load(fs, paths, "development")
	var cfgErr *migerr.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "password", cfgErr.Key)

	t.Setenv(secret.KeyEnv, encodedKey)
	cfg, err := Load(fs, paths, "development")
	require.NoError(t, err)
	require.Equal(t, "hunter2", cfg.Password)
}
