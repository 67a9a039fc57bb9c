// Package luamigrate discovers ordered migration scripts, runs them in an
// embedded Lua sandbox to generate SQL, and applies the generated SQL
// transactionally against one of the supported database engines. Sources
// are located by the `source` package, scripts are executed by `sandbox`,
// and statements are applied through `database` engine adapters; all
// orchestration logic is kept in this package.
package luamigrate

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/spoolworks/luamigrate/bootstrap"
	"github.com/spoolworks/luamigrate/database"
	"github.com/spoolworks/luamigrate/payload"
	"github.com/spoolworks/luamigrate/sandbox"
	"github.com/spoolworks/luamigrate/source"
)

// SandboxPolicy selects the sandbox lifetime for a migration batch.
type SandboxPolicy int

const (
	// FreshPerFile creates and destroys one sandbox per migration file.
	// Correctness-over-performance default.
	FreshPerFile SandboxPolicy = iota
	// ReusePerBatch keeps one sandbox across the batch, resetting its
	// state between files. Saves reloading the adapter modules.
	ReusePerBatch
)

// Mode selects what the migration scripts generate.
type Mode int

const (
	// ModeApply generates the schema-affecting migration SQL.
	ModeApply Mode = iota
	// ModeLoadOnly generates only bookkeeping INSERT statements tagging
	// queries as loaded; it never alters schema.
	ModeLoadOnly
)

// ErrNoSQL reports a migration script whose run produced an empty or
// all-whitespace SQL string. Every discovered migration file is expected
// to produce SQL, so this fails the batch rather than skipping.
var ErrNoSQL = fmt.Errorf("luamigrate: migration produced no SQL")

// Engine orchestrates migrations for one connection at a time. Batches
// for a single connection run strictly sequentially on the calling
// goroutine; separate connections may each run their own Engine batch
// concurrently as long as the payload store supports concurrent reads.
type Engine struct {
	store payload.Store

	// Log accepts a Logger interface
	Log Logger

	// Policy defaults to FreshPerFile.
	Policy SandboxPolicy
}

// New returns an Engine reading adapter modules and embedded migration
// scripts from store.
func New(store payload.Store) *Engine {
	return &Engine{store: store}
}

// ExecuteAuto runs every discovered migration for the connection in
// ascending version order, applying the generated SQL. It is a no-op
// success when auto-migration is disabled or no source is configured, and
// stops at the first failing file.
func (e *Engine) ExecuteAuto(ctx context.Context, cfg *ConnectionConfig, db database.Adapter) error {
	if !cfg.AutoMigration {
		e.logPrintf("[%s] auto migration disabled, nothing to do", cfg.Name)
		return nil
	}
	return e.execute(ctx, cfg, db, ModeApply)
}

// ExecuteLoadMigrations runs the same batch in load-only mode: every
// migration generates only version-tracking INSERT statements and no
// schema changes.
func (e *Engine) ExecuteLoadMigrations(ctx context.Context, cfg *ConnectionConfig, db database.Adapter) error {
	if !cfg.TestMigration {
		e.logPrintf("[%s] test migration disabled, nothing to do", cfg.Name)
		return nil
	}
	return e.execute(ctx, cfg, db, ModeLoadOnly)
}

func (e *Engine) execute(ctx context.Context, cfg *ConnectionConfig, db database.Adapter, mode Mode) error {
	if cfg.Migrations == "" {
		e.logPrintf("[%s] no migration source configured, nothing to do", cfg.Name)
		return nil
	}

	src, err := source.Parse(cfg.Migrations)
	if err != nil {
		e.logPrintf("[%s] invalid migration source: %v", cfg.Name, err)
		return err
	}

	eng, err := database.ParseEngine(cfg.Type)
	if err != nil {
		e.logPrintf("[%s] %v", cfg.Name, err)
		return err
	}

	migName, err := src.Name()
	if err != nil {
		e.logPrintf("[%s] %v", cfg.Name, err)
		return err
	}

	disc, err := source.Discover(src, e.store)
	if err != nil {
		e.logPrintf("[%s] discovery failed: %v", cfg.Name, err)
		return err
	}
	if len(disc.Files) == 0 {
		e.logPrintf("[%s] no migration files for %s, nothing to do", cfg.Name, migName)
		return nil
	}

	runID := uuid.NewString()
	e.logPrintf("[%s] run %s: %d migrations for %s (versions %d..%d)",
		cfg.Name, runID, len(disc.Files), migName, disc.Lowest, disc.Highest)

	// One payload acquisition per batch; every file reuses it.
	batch, err := e.loadBatch(src, disc)
	if err != nil {
		e.logPrintf("[%s] %v", cfg.Name, err)
		return err
	}

	var sb *sandbox.Sandbox
	if e.Policy == ReusePerBatch {
		sb, err = sandbox.New(runID, e.Log)
		if err != nil {
			return err
		}
		defer sb.Close()
		if err := sb.LoadModules(batch); err != nil {
			return err
		}
	}

	for _, f := range disc.Files {
		label := fmt.Sprintf("%s v%d", migName, f.Version)

		gen, err := e.generate(sb, batch, f, eng, migName, cfg.Schema, mode, runID)
		if err != nil {
			e.logPrintf("[%s] generation of %s failed: %v", cfg.Name, label, err)
			return err
		}

		if err := database.Apply(ctx, db, gen.Text, label, e.Log); err != nil {
			e.logPrintf("[%s] apply of %s failed: %v", cfg.Name, label, err)
			return err
		}
	}

	e.logPrintf("[%s] run %s: %d migrations applied", cfg.Name, runID, len(disc.Files))
	return nil
}

// loadBatch assembles the payload file set one time for the whole batch:
// the Lua adapter modules plus the migration scripts, whether embedded in
// the store or read from disk. Every file in the batch reuses this single
// acquisition.
func (e *Engine) loadBatch(src *source.Source, disc *source.Discovery) ([]payload.File, error) {
	if e.store == nil {
		return nil, fmt.Errorf("luamigrate: no payload store")
	}

	batch, err := e.store.FilesByPrefix(sandbox.ModulePrefix + "/")
	if err != nil {
		return nil, fmt.Errorf("luamigrate: load sandbox modules: %w", err)
	}

	if src.Embedded() {
		scripts, err := e.store.FilesByPrefix(src.Prefix + "/")
		if err != nil {
			return nil, fmt.Errorf("luamigrate: load migration payload %q: %w", src.Prefix, err)
		}
		return append(batch, scripts...), nil
	}

	for _, f := range disc.Files {
		data, err := os.ReadFile(f.Name)
		if err != nil {
			return nil, fmt.Errorf("luamigrate: read migration %s: %w", f.Name, err)
		}
		batch = append(batch, payload.File{Name: f.Name, Data: data})
	}
	return batch, nil
}

func (e *Engine) logPrintf(format string, v ...interface{}) {
	if e.Log != nil {
		e.Log.Printf(format, v...)
	}
}

// NewBootstrapRunner builds a bootstrap runner for a lead connection,
// honoring its configured bootstrap query and sharing the engine's logger.
func (e *Engine) NewBootstrapRunner(cfg *ConnectionConfig) *bootstrap.Runner {
	r := bootstrap.NewRunner()
	r.Query = cfg.BootstrapQuery
	r.Log = e.Log
	return r
}
