package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/secret"
)

const (
	DefaultChangelogTable = "CHANGELOG"
	DefaultDelimiter      = ";"
	DefaultTimeZone       = "GMT+0:00"
	EnvPrefix             = "MIGRATIONS"
)

// Paths is the on-disk layout rooted at the base directory.
type Paths struct {
	Base         string
	Scripts      string
	Environments string
	Drivers      string
}

// Environment is the immutable connection and execution snapshot for one invocation.
type Environment struct {
	Name string
	File string

	Driver     string
	URL        string
	Username   string
	Password   string
	DriverPath string

	Changelog           string
	AutoCreateChangelog bool
	TimeZone            *time.Location

	Delimiter         string
	FullLineDelimiter bool
	SendFullScript    bool
	RemoveCRs         bool
	AutoCommit        bool
	ScriptCharset     string
}

var (
	identPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)
	gmtZonePattern = regexp.MustCompile(`^(?:GMT|UTC)([+-])(\d{1,2})(?::?(\d{2}))?$`)
)

// ResolvePaths expands ~ in base and derives the scripts, environments and drivers directories.
func ResolvePaths(base string) (Paths, error) {
	if strings.TrimSpace(base) == "" {
		base = "."
	}
	expanded, err := homedir.Expand(base)
	if err != nil {
		return Paths{}, &migerr.ConfigurationError{Key: "path", Err: err}
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return Paths{}, &migerr.ConfigurationError{Key: "path", Err: err}
	}
	return Paths{
		Base:         abs,
		Scripts:      filepath.Join(abs, "scripts"),
		Environments: filepath.Join(abs, "environments"),
		Drivers:      filepath.Join(abs, "drivers"),
	}, nil
}

// EnvironmentFile is the properties file backing the named environment.
func (p Paths) EnvironmentFile(env string) string {
	return filepath.Join(p.Environments, env+".properties")
}

// Load reads environments/<env>.properties. Values may be overridden with
// MIGRATIONS_<KEY> variables, which are also picked up from .env files in the
// base and environments directories.
func Load(fs afero.Fs, paths Paths, env string) (Environment, error) {
	if strings.TrimSpace(env) == "" {
		return Environment{}, &migerr.ConfigurationError{Key: "env", Err: errors.New("environment name is required")}
	}
	file := paths.EnvironmentFile(env)
	exists, err := afero.Exists(fs, file)
	if err != nil {
		return Environment{}, &migerr.ConfigurationError{Path: file, Err: err}
	}
	if !exists {
		return Environment{}, &migerr.ConfigurationError{Path: file, Err: errors.New("environment file missing")}
	}

	for _, dotenv := range []string{filepath.Join(paths.Base, ".env"), filepath.Join(paths.Environments, ".env")} {
		if err := loadDotEnv(fs, dotenv); err != nil {
			return Environment{}, &migerr.ConfigurationError{Path: dotenv, Err: err}
		}
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(file)
	v.SetConfigType("properties")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("changelog", DefaultChangelogTable)
	v.SetDefault("delimiter", DefaultDelimiter)
	v.SetDefault("time_zone", DefaultTimeZone)
	v.SetDefault("auto_create_changelog", true)
	if err := v.ReadInConfig(); err != nil {
		return Environment{}, &migerr.ConfigurationError{Path: file, Err: fmt.Errorf("error loading environment properties: %w", err)}
	}

	cfg := Environment{
		Name:                env,
		File:                file,
		Driver:              strings.TrimSpace(v.GetString("driver")),
		URL:                 strings.TrimSpace(v.GetString("url")),
		Username:            v.GetString("username"),
		Password:            v.GetString("password"),
		Changelog:           strings.TrimSpace(v.GetString("changelog")),
		AutoCreateChangelog: v.GetBool("auto_create_changelog"),
		Delimiter:           v.GetString("delimiter"),
		FullLineDelimiter:   v.GetBool("full_line_delimiter"),
		SendFullScript:      v.GetBool("send_full_script"),
		RemoveCRs:           v.GetBool("remove_crs"),
		AutoCommit:          v.GetBool("auto_commit"),
		ScriptCharset:       strings.TrimSpace(v.GetString("script_char_set")),
	}

	if secret.IsSealed(cfg.Password) {
		key, err := secret.ParseKey(os.Getenv(secret.KeyEnv))
		if err != nil {
			return Environment{}, &migerr.ConfigurationError{Path: file, Key: "password", Err: err}
		}
		if cfg.Password, err = secret.Open(key, cfg.Password); err != nil {
			return Environment{}, &migerr.ConfigurationError{Path: file, Key: "password", Err: err}
		}
	}

	if dp := strings.TrimSpace(v.GetString("driver_path")); dp != "" {
		expanded, err := homedir.Expand(dp)
		if err != nil {
			return Environment{}, &migerr.ConfigurationError{Path: file, Key: "driver_path", Err: err}
		}
		cfg.DriverPath = expanded
	} else {
		cfg.DriverPath = paths.Drivers
	}

	if cfg.Delimiter == "" {
		cfg.Delimiter = DefaultDelimiter
	}
	if cfg.Changelog == "" {
		cfg.Changelog = DefaultChangelogTable
	}

	loc, err := ParseTimeZone(v.GetString("time_zone"))
	if err != nil {
		return Environment{}, &migerr.ConfigurationError{Path: file, Key: "time_zone", Err: err}
	}
	cfg.TimeZone = loc

	if err := cfg.Validate(); err != nil {
		return Environment{}, err
	}
	return cfg, nil
}

func (c Environment) Validate() error {
	if c.Driver == "" {
		return &migerr.ConfigurationError{Path: c.File, Key: "driver", Err: errors.New("is required")}
	}
	if c.URL == "" {
		return &migerr.ConfigurationError{Path: c.File, Key: "url", Err: errors.New("is required")}
	}
	if !identPattern.MatchString(c.Changelog) {
		return &migerr.ConfigurationError{Path: c.File, Key: "changelog", Err: fmt.Errorf("%q is not a valid table name", c.Changelog)}
	}
	return nil
}

// ParseTimeZone accepts IANA names, UTC/GMT and GMT offsets such as GMT+0:00 or GMT-5.
func ParseTimeZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	switch strings.ToUpper(name) {
	case "", "UTC", "GMT", "Z":
		return time.UTC, nil
	}
	if m := gmtZonePattern.FindStringSubmatch(strings.ToUpper(name)); m != nil {
		hours, _ := strconv.Atoi(m[2])
		minutes := 0
		if m[3] != "" {
			minutes, _ = strconv.Atoi(m[3])
		}
		if hours > 18 || minutes > 59 {
			return nil, fmt.Errorf("offset out of range in %q", name)
		}
		offset := hours*3600 + minutes*60
		if m[1] == "-" {
			offset = -offset
		}
		return time.FixedZone(name, offset), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// loadDotEnv exports variables from a .env file without overriding ones already set.
func loadDotEnv(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, v := range values {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}
