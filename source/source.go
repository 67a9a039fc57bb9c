// Package source locates versioned migration scripts for a connection.
// Scripts live either in the embedded payload store under
// `<prefix>/<prefix>_<version>.<ext>` or on disk under
// `<dir>/<basename>_<version>.<ext>`. Discovery returns them in strictly
// ascending version order; the version is a 1-6 digit suffix.
package source

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PayloadScheme prefixes a migration source string that addresses the
// embedded payload store rather than the filesystem.
const PayloadScheme = "PAYLOAD:"

var (
	ErrEmptySource = fmt.Errorf("source: empty migration source")
	ErrEmptyName   = fmt.Errorf("source: cannot derive migration name")
)

// Source identifies where the migration scripts of one connection live.
// Immutable; derived once from configuration at orchestration start.
type Source struct {
	// Prefix is set for embedded payload sources.
	Prefix string
	// Path is set for filesystem sources.
	Path string
}

// Embedded reports whether the source addresses the payload store.
func (s *Source) Embedded() bool { return s.Prefix != "" }

// Name returns the migration base name: the payload prefix, or the base
// name of the configured path.
func (s *Source) Name() (string, error) {
	if s.Embedded() {
		return s.Prefix, nil
	}
	name := filepath.Base(s.Path)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", ErrEmptyName
	}
	return name, nil
}

// Parse builds a Source from a connection's migrations setting, either
// `PAYLOAD:<name>` or a filesystem path.
func Parse(migrations string) (*Source, error) {
	if migrations == "" {
		return nil, ErrEmptySource
	}
	if strings.HasPrefix(migrations, PayloadScheme) {
		prefix := migrations[len(PayloadScheme):]
		if prefix == "" {
			return nil, ErrEmptyName
		}
		return &Source{Prefix: prefix}, nil
	}
	return &Source{Path: migrations}, nil
}
