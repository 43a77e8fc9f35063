package executor

import (
	"fmt"
	"regexp"
	"strings"

	"db_changelog_migrator/internal/migerr"
)

// Chunk is either a statement to execute or a comment line to echo.
type Chunk struct {
	Text    string
	Comment bool
}

// delimiterDirective matches "-- @DELIMITER $$" style lines that switch the
// delimiter for the rest of the script.
var delimiterDirective = regexp.MustCompile(`^\s*(?:--|//)?\s*(?://)?\s*@DELIMITER\s+(\S+)`)

// Split breaks script into statements. A line is a statement terminator when
// its trimmed text ends with delimiter, or in full-line mode equals it.
// Lines starting with "--" or "//" are comments and never reach the database.
func Split(script, delimiter string, fullLine bool) ([]Chunk, error) {
	var (
		chunks  []Chunk
		command strings.Builder
	)

	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case isComment(trimmed):
			if m := delimiterDirective.FindStringSubmatch(trimmed); m != nil {
				delimiter = m[1]
			}
			chunks = append(chunks, Chunk{Text: trimmed, Comment: true})
		case terminates(trimmed, delimiter, fullLine):
			command.WriteString(line[:strings.LastIndex(line, delimiter)])
			if stmt := strings.TrimSpace(command.String()); stmt != "" {
				chunks = append(chunks, Chunk{Text: stmt})
			}
			command.Reset()
		case trimmed != "":
			command.WriteString(line)
			command.WriteString("\n")
		}
	}

	if rest := strings.TrimSpace(command.String()); rest != "" {
		return chunks, fmt.Errorf("%w (%s) => %s", migerr.ErrMissingTerminator, delimiter, rest)
	}
	return chunks, nil
}

func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "//")
}

func terminates(trimmed, delimiter string, fullLine bool) bool {
	if fullLine {
		return trimmed == delimiter
	}
	return strings.HasSuffix(trimmed, delimiter)
}
