// Package payload provides read access to named byte blobs: migration
// scripts and the Lua adapter modules the sandbox loads. Stores are
// read-only after population and safe for concurrent readers.
package payload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// File is one named blob. Data is owned by the store; callers must not
// mutate it.
type File struct {
	Name string
	Data []byte
}

// Store is the read interface the migration engine consumes. Returned
// slices are fresh copies of the store's index and may be retained by the
// caller for the duration of a migration batch.
type Store interface {
	// FilesByPrefix returns every file whose name starts with prefix,
	// in lexical name order.
	FilesByPrefix(prefix string) ([]File, error)
}

// Memory is an in-memory Store populated once and read concurrently
// afterwards.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Add registers a file. Adding a duplicate name replaces the previous data.
// Add must not be called concurrently with FilesByPrefix.
func (m *Memory) Add(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
}

func (m *Memory) FilesByPrefix(prefix string) ([]File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []File
	for name, data := range m.files {
		if strings.HasPrefix(name, prefix) {
			out = append(out, File{Name: name, Data: data})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadDir loads every regular file in dir into File records, named by
// their base name. Used to feed path-based migration scripts through the
// same call protocol as embedded payloads.
func ReadDir(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("payload: read dir %s: %w", dir, err)
	}

	var out []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("payload: read %s: %w", e.Name(), err)
		}
		out = append(out, File{Name: e.Name(), Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the file with the exact given name, or nil.
func Find(files []File, name string) *File {
	for i := range files {
		if files[i].Name == name {
			return &files[i]
		}
	}
	return nil
}
