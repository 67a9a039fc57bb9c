package luamigrate

import (
	"strings"

	"github.com/spoolworks/luamigrate/database"
	"github.com/spoolworks/luamigrate/payload"
	"github.com/spoolworks/luamigrate/sandbox"
	"github.com/spoolworks/luamigrate/source"
)

// generate drives the sandbox through the fixed call sequence for one
// migration file: load modules, load the script, invoke the migration
// definition, invoke apply or load-only, and copy the generated SQL out
// before the sandbox is torn down or reset. The returned text is
// engine-owned and survives the sandbox.
func (e *Engine) generate(sb *sandbox.Sandbox, batch []payload.File, f source.MigrationFile,
	eng database.Engine, migName, schema string, mode Mode, runID string) (sandbox.GeneratedSQL, error) {

	if sb == nil {
		// fresh sandbox per file
		fresh, err := sandbox.New(runID, e.Log)
		if err != nil {
			return sandbox.GeneratedSQL{}, err
		}
		defer fresh.Close()
		if err := fresh.LoadModules(batch); err != nil {
			return sandbox.GeneratedSQL{}, err
		}
		sb = fresh
	} else {
		defer sb.Reset()
	}

	script := sandbox.FindScript(batch, f.Name)
	if script == nil {
		return sandbox.GeneratedSQL{}, sandbox.ErrScriptNotFound
	}
	if err := sb.LoadScript(script); err != nil {
		return sandbox.GeneratedSQL{}, err
	}

	queries, count, err := sb.InvokeDefinition(eng, migName, schema)
	if err != nil {
		return sandbox.GeneratedSQL{}, err
	}

	var gen sandbox.GeneratedSQL
	if mode == ModeLoadOnly {
		gen, err = sb.InvokeLoadOnly(queries, eng, migName, schema)
	} else {
		gen, err = sb.InvokeApply(queries, eng, migName, schema)
	}
	if err != nil {
		return sandbox.GeneratedSQL{}, err
	}

	if strings.TrimSpace(gen.Text) == "" {
		return sandbox.GeneratedSQL{}, ErrNoSQL
	}

	if e.Log != nil && e.Log.Verbose() {
		e.Log.Printf("generated %d lines of SQL for %s v%d (%d queries)",
			countLines(gen.Text), migName, f.Version, count)
	}
	return gen, nil
}

// countLines counts newline bytes, with a minimum of one for non-empty
// text. Logging only.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if n == 0 {
		return 1
	}
	return n
}
