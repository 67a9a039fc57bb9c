package source

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spoolworks/luamigrate/payload"
)

// Discover enumerates the migration scripts of src in ascending version
// order. Entries whose name does not carry a valid 1-6 digit version
// suffix are skipped. A zero-file result is not an error; an unreadable
// filesystem directory is. Calling Discover twice on an unchanged file set
// yields identical results.
func Discover(src *Source, store payload.Store) (*Discovery, error) {
	if src.Embedded() {
		return discoverPayload(src.Prefix, store)
	}
	return discoverPath(src.Path)
}

// Validate reports whether at least one migration script is resolvable for
// src. It performs the same pattern search as Discover but opens nothing
// beyond the directory or payload listing.
func Validate(src *Source, store payload.Store) bool {
	d, err := Discover(src, store)
	return err == nil && len(d.Files) > 0
}

func discoverPayload(prefix string, store payload.Store) (*Discovery, error) {
	if store == nil {
		return nil, fmt.Errorf("source: no payload store for prefix %q", prefix)
	}

	files, err := store.FilesByPrefix(prefix + "/")
	if err != nil {
		return nil, fmt.Errorf("source: list payload prefix %q: %w", prefix, err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, strings.TrimPrefix(f.Name, prefix+"/"))
	}
	return collect(prefix, names, func(name string) string {
		return path.Join(prefix, name)
	})
}

func discoverPath(p string) (*Discovery, error) {
	dir := filepath.Dir(p)
	base := filepath.Base(p)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: read migration dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return collect(base, names, func(name string) string {
		return filepath.Join(dir, name)
	})
}
