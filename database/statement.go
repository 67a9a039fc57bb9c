package database

import "strings"

// StatementDelimiter is the literal token the Lua orchestration module
// places between generated statements. It is an internal contract between
// the generation step and the transaction executor and is never valid SQL
// on its own.
const StatementDelimiter = "--@@--"

// SplitStatements splits generated SQL into individual statements on
// StatementDelimiter. Each candidate is trimmed of surrounding whitespace;
// empties are dropped, never executed.
func SplitStatements(text string) []string {
	parts := strings.Split(text, StatementDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
