package db

import (
	"database/sql/driver"
	"fmt"
	"plugin"
)

// loadPlugin opens a Go plugin built with -buildmode=plugin. The plugin exports
// either
//
//	func Connect(url, username, password string) (driver.Connector, error)
//
// or a driver value
//
//	var Driver driver.Driver
//
// and optionally "var Dialect string" naming the SQL flavour (postgres, mysql, sqlite).
func loadPlugin(name, path string) (*Driver, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}

	d := &Driver{Name: name, Source: path, Dialect: genericDialect{}}
	if sym, err := p.Lookup("Dialect"); err == nil {
		if s, ok := sym.(*string); ok {
			d.Dialect = dialectByName(*s)
		}
	}

	if sym, err := p.Lookup("Connect"); err == nil {
		fn, ok := sym.(func(string, string, string) (driver.Connector, error))
		if !ok {
			return nil, fmt.Errorf("symbol Connect has type %T", sym)
		}
		d.connect = fn
		return d, nil
	}

	sym, err := p.Lookup("Driver")
	if err != nil {
		return nil, fmt.Errorf("plugin exports neither Connect nor Driver: %w", err)
	}
	var drv driver.Driver
	switch v := sym.(type) {
	case *driver.Driver:
		drv = *v
	case driver.Driver:
		drv = v
	default:
		return nil, fmt.Errorf("symbol Driver has type %T", sym)
	}
	if drv == nil {
		return nil, fmt.Errorf("symbol Driver is nil")
	}
	d.connect = func(url, _, _ string) (driver.Connector, error) {
		return connectorFor(drv, url)
	}
	return d, nil
}
