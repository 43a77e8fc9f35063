// Package script discovers migration scripts on disk and reads their bodies.
package script

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"db_changelog_migrator/internal/migerr"
	"db_changelog_migrator/internal/version"
)

const (
	Extension     = ".sql"
	BootstrapFile = "bootstrap.sql"
)

// Script is one change file found in the scripts directory.
type Script struct {
	ID          version.ID
	Description string
	Filename    string
	Path        string
}

// Body is the decoded content of a script split at its undo marker.
type Body struct {
	Forward string
	Undo    string
	HasUndo bool
}

// Source reads scripts through an afero filesystem so tests can run in memory.
type Source struct {
	fs      afero.Fs
	charset string
}

func NewSource(fs afero.Fs, charset string) *Source {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Source{fs: fs, charset: charset}
}

// List returns every change script in dir ordered by filename. The bootstrap
// script and files without the script extension are skipped.
func (s *Source) List(dir string) ([]Script, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, &migerr.DirectoryNotFoundError{Path: dir, Err: err}
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name := info.Name()
		if !strings.HasSuffix(name, Extension) || name == BootstrapFile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		sc, err := ParseFilename(name)
		if err != nil {
			return nil, err
		}
		sc.Path = filepath.Join(dir, name)
		scripts = append(scripts, sc)
	}
	return scripts, nil
}

// Find returns the script in dir carrying id.
func (s *Source) Find(dir string, id version.ID) (Script, bool, error) {
	scripts, err := s.List(dir)
	if err != nil {
		return Script{}, false, err
	}
	for _, sc := range scripts {
		if sc.ID.Equal(id) {
			return sc, true, nil
		}
	}
	return Script{}, false, nil
}

// Bootstrap returns the path of dir/bootstrap.sql and whether it exists.
func (s *Source) Bootstrap(dir string) (string, bool, error) {
	path := filepath.Join(dir, BootstrapFile)
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", false, err
	}
	return path, ok, nil
}

// Read loads and decodes the file at path and splits it at the undo marker.
func (s *Source) Read(path string) (Body, error) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return Body{}, fmt.Errorf("read script %s: %w", path, err)
	}
	text, err := s.decode(raw)
	if err != nil {
		return Body{}, fmt.Errorf("decode script %s: %w", path, err)
	}
	return Split(text), nil
}

func (s *Source) decode(raw []byte) (string, error) {
	if s.charset == "" {
		return string(raw), nil
	}
	enc, err := lookupCharset(s.charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func lookupCharset(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, &migerr.ConfigurationError{Key: "script_char_set", Err: err}
	}
	if enc == nil {
		return nil, &migerr.ConfigurationError{Key: "script_char_set", Err: fmt.Errorf("charset %q is not supported", name)}
	}
	return enc, nil
}

// ParseFilename splits "<id>_<words>.<ext>" into an id and a space separated description.
func ParseFilename(name string) (Script, error) {
	stem, _, _ := strings.Cut(name, ".")
	parts := strings.Split(stem, "_")
	id, err := version.Parse(parts[0])
	if err != nil {
		return Script{}, &migerr.FilenameParseError{Filename: name, Err: err}
	}
	return Script{
		ID:          id,
		Description: strings.Join(parts[1:], " "),
		Filename:    name,
	}, nil
}

// Split separates the forward part of a script from the undo part that
// follows a "-- //@UNDO" comment line.
func Split(text string) Body {
	lines := strings.SplitAfter(text, "\n")
	for i, line := range lines {
		if isUndoMarker(line) {
			return Body{
				Forward: strings.Join(lines[:i], ""),
				Undo:    strings.Join(lines[i+1:], ""),
				HasUndo: true,
			}
		}
	}
	return Body{Forward: text}
}

func isUndoMarker(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "--") {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "--"))
	return strings.EqualFold(rest, "//@UNDO")
}
