package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"db_changelog_migrator/internal/migerr"
)

const builtinSource = "builtin"

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type builtin struct {
	dialect Dialect
	connect ConnectFunc
}

var builtins = map[string]builtin{
	"pgx":    {dialect: postgresDialect{}, connect: connectPgx},
	"pq":     {dialect: postgresDialect{}, connect: connectPq},
	"mysql":  {dialect: mysqlDialect{}, connect: connectMySQL},
	"sqlite": {dialect: sqliteDialect{}, connect: connectModernc},
	// cgo build of SQLite.
	"sqlite3": {dialect: sqliteDialect{}, connect: connectMattn},
}

// aliases maps accepted driver names, including JDBC class names found in
// older environment files, to a built-in driver.
var aliases = map[string]string{
	"postgres":                 "pgx",
	"postgresql":               "pgx",
	"org.postgresql.driver":    "pgx",
	"lib/pq":                   "pq",
	"com.mysql.jdbc.driver":    "mysql",
	"com.mysql.cj.jdbc.driver": "mysql",
	"org.mariadb.jdbc.driver":  "mysql",
	"mariadb":                  "mysql",
	"org.sqlite.jdbc":          "sqlite",
	"modernc":                  "sqlite",
}

// Registry resolves driver names to handles. It is owned by one engine and
// never touches the database/sql global registry.
type Registry struct {
	logger Logger

	mu      sync.Mutex
	drivers map[string]*Driver
}

func NewRegistry(logger Logger) *Registry {
	return &Registry{logger: logger, drivers: make(map[string]*Driver)}
}

// Resolve returns the driver for name. When customPath points at an existing
// directory (or .so file) containing a plugin for name, the plugin wins over
// the built-in driver. A customPath that does not exist is ignored.
func (r *Registry) Resolve(name, customPath string) (*Driver, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, &migerr.DriverLoadError{Driver: name, Err: errors.New("driver name is empty")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.drivers[key]; ok {
		return d, nil
	}

	pluginPath, err := r.pluginPath(name, customPath)
	if err != nil {
		return nil, err
	}

	var d *Driver
	if pluginPath != "" {
		d, err = loadPlugin(name, pluginPath)
		if err != nil {
			return nil, &migerr.DriverLoadError{Driver: name, Path: pluginPath, Err: err}
		}
	} else {
		d, err = lookupBuiltin(name, key)
		if err != nil {
			return nil, &migerr.DriverLoadError{Driver: name, Path: customPath, Err: err}
		}
	}

	if r.logger != nil {
		r.logger.Debug("driver resolved", "driver", d.Name, "source", d.Source, "dialect", d.Dialect.Name())
	}
	r.drivers[key] = d
	return d, nil
}

// pluginPath returns the plugin file to load, or "" when built-ins apply.
func (r *Registry) pluginPath(name, customPath string) (string, error) {
	if customPath == "" {
		return "", nil
	}
	info, err := os.Stat(customPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if r.logger != nil {
				r.logger.Debug("driver path missing, using built-in drivers", "path", customPath)
			}
			return "", nil
		}
		return "", &migerr.DriverLoadError{Driver: name, Path: customPath, Err: err}
	}
	if !info.IsDir() {
		if filepath.Ext(customPath) == ".so" {
			return customPath, nil
		}
		return "", &migerr.DriverLoadError{Driver: name, Path: customPath, Err: errors.New("driver path is neither a directory nor a .so plugin")}
	}

	candidate := filepath.Join(customPath, pluginFileName(name))
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", nil
}

func pluginFileName(name string) string {
	base := strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(name))
	return base + ".so"
}

func lookupBuiltin(name, key string) (*Driver, error) {
	canonical := key
	if alias, ok := aliases[key]; ok {
		canonical = alias
	}
	b, ok := builtins[canonical]
	if !ok {
		return nil, fmt.Errorf("unknown driver, built-in drivers are %s", strings.Join(BuiltinNames(), ", "))
	}
	return &Driver{Name: canonical, Source: builtinSource, Dialect: b.dialect, connect: b.connect}, nil
}

// BuiltinNames lists the canonical built-in driver names.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dialectByName(name string) Dialect {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx", "pq":
		return postgresDialect{}
	case "mysql", "mariadb":
		return mysqlDialect{}
	case "sqlite", "sqlite3":
		return sqliteDialect{}
	default:
		return genericDialect{}
	}
}
