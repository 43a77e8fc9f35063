package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IDLayout is the timestamp layout used for ids of newly created scripts.
const IDLayout = "20060102150405"

const scriptTemplate = `-- // %s
-- Forward statements go above the undo marker.


-- //@UNDO
-- Statements that revert the change go here.

`

// Create writes an empty change script named "<timestamp>_<description>.sql"
// into dir and returns it. The timestamp is taken in now's location.
func (s *Source) Create(dir, description string, now time.Time) (Script, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Script{}, fmt.Errorf("description is required")
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return Script{}, err
	}

	name := now.Format(IDLayout) + "_" + safeName(description) + Extension
	path := filepath.Join(dir, name)
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return Script{}, fmt.Errorf("script %s already exists", name)
		}
		return Script{}, fmt.Errorf("create script %s: %w", name, err)
	}
	if _, err := fmt.Fprintf(f, scriptTemplate, description); err != nil {
		_ = f.Close()
		return Script{}, fmt.Errorf("write script %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Script{}, err
	}

	sc, err := ParseFilename(name)
	if err != nil {
		_ = s.fs.Remove(path)
		return Script{}, err
	}
	sc.Path = path
	return sc, nil
}

func safeName(description string) string {
	return strings.Join(strings.Fields(description), "_")
}
