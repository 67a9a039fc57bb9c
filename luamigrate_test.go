package luamigrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spoolworks/luamigrate/database"
	"github.com/spoolworks/luamigrate/payload"
)

const adapterModule = `
return {
    quote = function(name) return '"' .. name .. '"' end,
}
`

const orchestrationModule = `
local M = {}

M.defaults = {
    postgresql = { version_table = "queries" },
    mysql      = { version_table = "queries" },
    sqlite     = { version_table = "queries" },
    db2        = { version_table = "queries" },
}

local DELIM = "\n--@@--\n"

function M.run_migration(self, queries, engine, name, schema)
    local stmts = {}
    for _, q in ipairs(queries) do
        stmts[#stmts + 1] = q.sql
    end
    return table.concat(stmts, DELIM)
end

function M.load_migration(self, queries, engine, name, schema)
    local stmts = {}
    for _, q in ipairs(queries) do
        stmts[#stmts + 1] = string.format(
            "INSERT INTO queries (ref, status) VALUES (%d, 1000)", q.ref)
    end
    return table.concat(stmts, DELIM)
end

return M
`

func migrationScript(version uint64) []byte {
	return []byte(fmt.Sprintf(`
return function(engine, name, schema, defaults)
    return {
        { ref = %[1]d, sql = "CREATE TABLE t_%[1]d (id INTEGER)" },
    }
end
`, version))
}

func newStore(t *testing.T, versions ...uint64) *payload.Memory {
	t.Helper()
	m := payload.NewMemory()
	m.Add("modules/migration.lua", []byte(orchestrationModule))
	for _, e := range database.Engines() {
		m.Add("modules/"+e.String()+".lua", []byte(adapterModule))
	}
	for _, v := range versions {
		m.Add(fmt.Sprintf("queue/queue_%d.lua", v), migrationScript(v))
	}
	return m
}

// stubAdapter records every statement execution attempt and the statements
// of committed transactions. failOn injects a failure into any statement
// containing the marker.
type stubAdapter struct {
	failOn    string
	attempted []string
	committed []string
	rollbacks int
	begun     int
}

func (a *stubAdapter) Engine() database.Engine        { return database.SQLite }
func (a *stubAdapter) Ping(ctx context.Context) error { return nil }
func (a *stubAdapter) Close() error                   { return nil }

func (a *stubAdapter) Begin(ctx context.Context) (database.Tx, error) {
	a.begun++
	return &stubTx{a: a}, nil
}

type stubTx struct {
	a     *stubAdapter
	stmts []string
}

func (t *stubTx) Exec(ctx context.Context, statement string) error {
	t.a.attempted = append(t.a.attempted, statement)
	if t.a.failOn != "" && strings.Contains(statement, t.a.failOn) {
		return errors.New("injected statement failure")
	}
	t.stmts = append(t.stmts, statement)
	return nil
}

func (t *stubTx) Commit() error {
	t.a.committed = append(t.a.committed, t.stmts...)
	return nil
}

func (t *stubTx) Rollback() error {
	t.a.rollbacks++
	return nil
}

func (t *stubTx) Cleanup() {}

func autoConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Name:          "spool",
		Type:          "sqlite",
		AutoMigration: true,
		TestMigration: true,
		Migrations:    "PAYLOAD:queue",
	}
}

func TestExecuteAutoAppliesInAscendingOrder(t *testing.T) {
	e := New(newStore(t, 3, 1, 10))
	db := &stubAdapter{}

	if err := e.ExecuteAuto(context.Background(), autoConfig(), db); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"CREATE TABLE t_1 (id INTEGER)",
		"CREATE TABLE t_3 (id INTEGER)",
		"CREATE TABLE t_10 (id INTEGER)",
	}
	if !reflect.DeepEqual(db.committed, want) {
		t.Errorf("committed = %#v", db.committed)
	}
	if db.begun != 3 {
		t.Errorf("transactions = %d, want 3", db.begun)
	}
}

func TestExecuteAutoStopsAtFirstFailure(t *testing.T) {
	e := New(newStore(t, 1, 3, 10))
	db := &stubAdapter{failOn: "t_3"}

	err := e.ExecuteAuto(context.Background(), autoConfig(), db)
	if err == nil {
		t.Fatal("expected failure")
	}

	if !reflect.DeepEqual(db.committed, []string{"CREATE TABLE t_1 (id INTEGER)"}) {
		t.Errorf("committed = %#v", db.committed)
	}
	if db.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", db.rollbacks)
	}
	for _, st := range db.attempted {
		if strings.Contains(st, "t_10") {
			t.Errorf("later migration attempted after failure: %q", st)
		}
	}
}

func TestExecuteAutoEmptySetIsSuccess(t *testing.T) {
	e := New(newStore(t)) // modules only, zero migrations
	db := &stubAdapter{}

	if err := e.ExecuteAuto(context.Background(), autoConfig(), db); err != nil {
		t.Fatal(err)
	}
	if db.begun != 0 {
		t.Errorf("transactions = %d, want 0", db.begun)
	}
}

func TestExecuteAutoDisabledIsNoop(t *testing.T) {
	e := New(nil)
	cfg := autoConfig()
	cfg.AutoMigration = false

	if err := e.ExecuteAuto(context.Background(), cfg, &stubAdapter{}); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteAutoNoSourceIsNoop(t *testing.T) {
	e := New(nil)
	cfg := autoConfig()
	cfg.Migrations = ""

	if err := e.ExecuteAuto(context.Background(), cfg, &stubAdapter{}); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteAutoUnknownEngineFails(t *testing.T) {
	e := New(newStore(t, 1))
	cfg := autoConfig()
	cfg.Type = "oracle"

	db := &stubAdapter{}
	if err := e.ExecuteAuto(context.Background(), cfg, db); err == nil {
		t.Fatal("expected engine normalization failure")
	}
	if db.begun != 0 {
		t.Errorf("transactions = %d, want 0", db.begun)
	}
}

func TestExecuteLoadMigrationsProducesOnlyStatusInserts(t *testing.T) {
	e := New(newStore(t, 1, 2))
	db := &stubAdapter{}

	if err := e.ExecuteLoadMigrations(context.Background(), autoConfig(), db); err != nil {
		t.Fatal(err)
	}
	if len(db.committed) != 2 {
		t.Fatalf("committed = %#v", db.committed)
	}
	for _, st := range db.committed {
		if !strings.HasPrefix(st, "INSERT INTO queries") || !strings.Contains(st, "1000") {
			t.Errorf("load-only statement = %q", st)
		}
		for _, ddl := range []string{"CREATE", "ALTER", "DROP"} {
			if strings.Contains(st, ddl) {
				t.Errorf("load-only mode produced schema statement: %q", st)
			}
		}
	}
}

func TestExecuteLoadMigrationsDisabledIsNoop(t *testing.T) {
	e := New(nil)
	cfg := autoConfig()
	cfg.TestMigration = false

	if err := e.ExecuteLoadMigrations(context.Background(), cfg, &stubAdapter{}); err != nil {
		t.Fatal(err)
	}
}

func TestReusePerBatchMatchesFreshPerFile(t *testing.T) {
	fresh := &stubAdapter{}
	e := New(newStore(t, 1, 2, 3))
	if err := e.ExecuteAuto(context.Background(), autoConfig(), fresh); err != nil {
		t.Fatal(err)
	}

	reused := &stubAdapter{}
	e = New(newStore(t, 1, 2, 3))
	e.Policy = ReusePerBatch
	if err := e.ExecuteAuto(context.Background(), autoConfig(), reused); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(fresh.committed, reused.committed) {
		t.Errorf("policies diverge:\nfresh:  %#v\nreused: %#v", fresh.committed, reused.committed)
	}
}

func TestNewBootstrapRunnerUsesConfiguredQuery(t *testing.T) {
	e := New(nil)
	cfg := autoConfig()
	cfg.BootstrapQuery = "SELECT custom_bootstrap()"

	r := e.NewBootstrapRunner(cfg)
	if r.Query != cfg.BootstrapQuery {
		t.Errorf("query = %q", r.Query)
	}
}

func TestExecuteAutoPathSource(t *testing.T) {
	dir := t.TempDir()
	for _, v := range []uint64{2, 1} {
		name := fmt.Sprintf("queue_%d.lua", v)
		if err := os.WriteFile(filepath.Join(dir, name), migrationScript(v), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	e := New(newStore(t)) // adapter modules still come from the payload store
	cfg := autoConfig()
	cfg.Migrations = filepath.Join(dir, "queue")

	db := &stubAdapter{}
	if err := e.ExecuteAuto(context.Background(), cfg, db); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"CREATE TABLE t_1 (id INTEGER)",
		"CREATE TABLE t_2 (id INTEGER)",
	}
	if !reflect.DeepEqual(db.committed, want) {
		t.Errorf("committed = %#v", db.committed)
	}
}
