package source

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// MigrationFile is one discovered script. Name is the payload entry name
// for embedded sources or the full path for filesystem sources.
type MigrationFile struct {
	Name    string
	Version uint64
}

// Discovery is the ordered result of a discovery run. Files are sorted by
// ascending version; Lowest and Highest are zero when Files is empty.
type Discovery struct {
	Files   []MigrationFile
	Lowest  uint64
	Highest uint64
}

// ErrDuplicateVersion reports two migration files sharing a version.
// Duplicates are a discovery error, never silently resolved.
type ErrDuplicateVersion struct {
	Version uint64
	First   string
	Second  string
}

func (e ErrDuplicateVersion) Error() string {
	return fmt.Sprintf("source: duplicate migration version %d: %s and %s", e.Version, e.First, e.Second)
}

// versionRegex matches `<base>_<digits>.<ext>` file names. The digit run
// length is validated separately so over-long suffixes are skipped, not
// treated as a parse failure.
func versionRegex(base string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_([0-9]+)\.[^.]+$`)
}

// extractVersion pulls the version suffix out of a candidate file name.
// Digit runs of length 0 or greater than 6 exclude the entry.
func extractVersion(re *regexp.Regexp, name string) (uint64, bool) {
	m := re.FindStringSubmatch(name)
	if len(m) != 2 {
		return 0, false
	}
	if len(m[1]) == 0 || len(m[1]) > 6 {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// collect filters candidate names through the version pattern, rejects
// duplicate versions and returns the ascending-sorted result. qualify maps
// a bare candidate name to the name recorded in the MigrationFile.
func collect(base string, names []string, qualify func(string) string) (*Discovery, error) {
	re := versionRegex(base)
	seen := make(map[uint64]string)

	d := &Discovery{}
	for _, name := range names {
		v, ok := extractVersion(re, name)
		if !ok {
			continue
		}
		qualified := qualify(name)
		if prev, dup := seen[v]; dup {
			return nil, ErrDuplicateVersion{Version: v, First: prev, Second: qualified}
		}
		seen[v] = qualified
		d.Files = append(d.Files, MigrationFile{Name: qualified, Version: v})
	}

	sort.Slice(d.Files, func(i, j int) bool { return d.Files[i].Version < d.Files[j].Version })
	if len(d.Files) > 0 {
		d.Lowest = d.Files[0].Version
		d.Highest = d.Files[len(d.Files)-1].Version
	}
	return d, nil
}
