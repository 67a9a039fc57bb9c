// Package sandbox runs migration scripts in an embedded Lua interpreter
// used purely as a SQL generator. A Sandbox is a short-lived, explicitly
// scoped resource owned by one goroutine: the safe default is one instance
// per migration file, with reuse-after-Reset available when reloading the
// adapter modules is too expensive.
//
// Interpreter-owned values never outlive the Sandbox. Any string crossing
// back into engine code is copied out through copyOutBeforeClose before
// the next interpreter operation.
package sandbox

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/spoolworks/luamigrate/database"
	"github.com/spoolworks/luamigrate/payload"
)

const (
	// ModulePrefix is the payload directory holding the Lua adapter and
	// orchestration modules.
	ModulePrefix = "modules"

	// OrchestrationModule is the shared module driving SQL assembly. Its
	// table exposes defaults[engine], run_migration and load_migration.
	OrchestrationModule = "migration"

	runMigrationFunc  = "run_migration"
	loadMigrationFunc = "load_migration"
)

var ErrScriptNotFound = fmt.Errorf("sandbox: migration script not found")

// Logger accepts a logging sink.
type Logger interface {
	Printf(format string, v ...interface{})
	Verbose() bool
}

// GeneratedSQL is the output of one migration script run. Text is owned by
// the caller and stays valid after the producing Sandbox is closed.
type GeneratedSQL struct {
	Text       string
	QueryCount int
}

// Queries is an opaque handle to the queries table a migration definition
// returned. Valid only for the Sandbox that produced it, until its next
// Reset or Close.
type Queries struct {
	tbl *lua.LTable
}

// Sandbox wraps one Lua interpreter instance.
type Sandbox struct {
	l     *lua.LState
	label string
	log   Logger

	// baseline is the stack top recorded after module load; Reset
	// truncates back to it.
	baseline      int
	modulesLoaded bool
	script        *lua.LFunction
}

// New allocates a fresh interpreter with the standard libraries loaded.
// label identifies this instance in log lines.
func New(label string, log Logger) (*Sandbox, error) {
	l := lua.NewState()
	if l == nil {
		return nil, fmt.Errorf("sandbox: interpreter allocation failed")
	}
	return &Sandbox{l: l, label: label, log: log}, nil
}

// LoadModules loads the four engine adapter modules plus the orchestration
// module from files. All engines load unconditionally so the orchestration
// module's lookups resolve regardless of the targeted engine. Each module
// chunk must return a table, which is bound both as a global and under
// package.loaded. Any single failure aborts the load.
func (s *Sandbox) LoadModules(files []payload.File) error {
	if s.modulesLoaded {
		return nil
	}

	names := make([]string, 0, len(database.Engines())+1)
	for _, e := range database.Engines() {
		names = append(names, e.String())
	}
	names = append(names, OrchestrationModule)

	for _, name := range names {
		f := payload.Find(files, ModulePrefix+"/"+name+".lua")
		if f == nil {
			return s.fail("module %s missing from payload", name)
		}
		tbl, err := s.runChunkTable(f.Name, f.Data)
		if err != nil {
			return fmt.Errorf("sandbox: load module %s: %w", name, err)
		}
		s.l.SetGlobal(name, tbl)
		s.registerLoaded(name, tbl)
	}

	s.modulesLoaded = true
	s.baseline = s.l.GetTop()
	if s.log != nil && s.log.Verbose() {
		s.log.Printf("[%s] loaded %d sandbox modules", s.label, len(names))
	}
	return nil
}

// FindScript locates a migration script by exact name in the file set.
func FindScript(files []payload.File, name string) *payload.File {
	return payload.Find(files, name)
}

// LoadScript compiles and runs the migration script, which must leave
// exactly one function value: the migration definition.
func (s *Sandbox) LoadScript(f *payload.File) error {
	if f == nil {
		return ErrScriptNotFound
	}

	fn, err := s.l.Load(bytes.NewReader(f.Data), f.Name)
	if err != nil {
		return s.fail("compile %s: %s", f.Name, luaErr(err))
	}
	s.l.Push(fn)
	if err := s.l.PCall(0, 1, nil); err != nil {
		return s.fail("run %s: %s", f.Name, luaErr(err))
	}

	ret := s.l.Get(-1)
	def, ok := ret.(*lua.LFunction)
	if !ok {
		s.l.Pop(1)
		return s.fail("script %s returned %s, want function", f.Name, ret.Type())
	}
	s.l.Pop(1)
	s.script = def
	return nil
}

// InvokeDefinition calls the loaded migration definition with the engine
// name, migration name, schema name and the engine's defaults table from
// the orchestration module. The returned queries table is iterated only to
// count entries.
func (s *Sandbox) InvokeDefinition(engine database.Engine, migrationName, schemaName string) (*Queries, int, error) {
	if s.script == nil {
		return nil, 0, s.fail("no migration script loaded")
	}

	engCfg := lua.LValue(lua.LNil)
	if mod, ok := s.l.GetGlobal(OrchestrationModule).(*lua.LTable); ok {
		if defaults, ok := s.l.GetField(mod, "defaults").(*lua.LTable); ok {
			engCfg = s.l.GetField(defaults, engine.String())
		}
	}

	err := s.l.CallByParam(lua.P{Fn: s.script, NRet: 1, Protect: true},
		lua.LString(engine.String()),
		lua.LString(migrationName),
		lua.LString(schemaName),
		engCfg,
	)
	if err != nil {
		return nil, 0, s.fail("migration definition: %s", luaErr(err))
	}

	ret := s.l.Get(-1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		s.l.Pop(1)
		return nil, 0, s.fail("migration definition returned %s, want table", ret.Type())
	}
	s.l.Pop(1)

	count := 0
	tbl.ForEach(func(_, _ lua.LValue) { count++ })
	if s.log != nil && s.log.Verbose() {
		s.log.Printf("[%s] migration %s defined %d queries", s.label, migrationName, count)
	}
	return &Queries{tbl: tbl}, count, nil
}

// InvokeApply calls the orchestration module's run_migration with the
// queries table and returns the generated SQL, copied out of interpreter
// memory before returning.
func (s *Sandbox) InvokeApply(q *Queries, engine database.Engine, migrationName, schemaName string) (GeneratedSQL, error) {
	return s.invokeGenerator(runMigrationFunc, q, engine, migrationName, schemaName)
}

// InvokeLoadOnly is InvokeApply's metadata-only counterpart: it calls
// load_migration, which generates bookkeeping INSERT statements tagging
// queries as loaded rather than applying schema changes.
func (s *Sandbox) InvokeLoadOnly(q *Queries, engine database.Engine, migrationName, schemaName string) (GeneratedSQL, error) {
	return s.invokeGenerator(loadMigrationFunc, q, engine, migrationName, schemaName)
}

func (s *Sandbox) invokeGenerator(method string, q *Queries, engine database.Engine, migrationName, schemaName string) (GeneratedSQL, error) {
	if q == nil || q.tbl == nil {
		return GeneratedSQL{}, s.fail("no queries table")
	}
	mod, ok := s.l.GetGlobal(OrchestrationModule).(*lua.LTable)
	if !ok {
		return GeneratedSQL{}, s.fail("orchestration module not loaded")
	}
	fn, ok := s.l.GetField(mod, method).(*lua.LFunction)
	if !ok {
		return GeneratedSQL{}, s.fail("orchestration module has no %s function", method)
	}

	err := s.l.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
		mod,
		q.tbl,
		lua.LString(engine.String()),
		lua.LString(migrationName),
		lua.LString(schemaName),
	)
	if err != nil {
		return GeneratedSQL{}, s.fail("%s: %s", method, luaErr(err))
	}

	ret := s.l.Get(-1)
	str, ok := ret.(lua.LString)
	if !ok {
		s.l.Pop(1)
		return GeneratedSQL{}, s.fail("%s returned %s, want string", method, ret.Type())
	}

	// Copy before any further interpreter operation, including the Pop.
	text := copyOutBeforeClose(str)
	s.l.Pop(1)

	count := 0
	q.tbl.ForEach(func(_, _ lua.LValue) { count++ })
	return GeneratedSQL{Text: text, QueryCount: count}, nil
}

// Reset clears the evaluation stack back to the post-module-load baseline
// and forces a collection cycle. Required between migrations when a single
// Sandbox is reused across files; repeated compilations on a dirty stack
// are a known interpreter-state hazard.
func (s *Sandbox) Reset() {
	s.script = nil
	if s.modulesLoaded {
		s.l.SetTop(s.baseline)
	} else {
		s.l.SetTop(0)
	}
	runtime.GC()
}

// Close destroys the interpreter. Values obtained from the Sandbox are
// invalid afterwards, except strings already copied out.
func (s *Sandbox) Close() {
	s.script = nil
	s.l.Close()
}

// copyOutBeforeClose copies an interpreter-owned string into engine-owned
// memory. Every string crossing the interpreter boundary goes through here
// so results never alias sandbox storage that Close invalidates.
func copyOutBeforeClose(v lua.LString) string {
	return strings.Clone(string(v))
}

// runChunkTable compiles and runs a module chunk that must return a table.
func (s *Sandbox) runChunkTable(name string, data []byte) (*lua.LTable, error) {
	fn, err := s.l.Load(bytes.NewReader(data), name)
	if err != nil {
		return nil, fmt.Errorf("compile: %s", luaErr(err))
	}
	s.l.Push(fn)
	if err := s.l.PCall(0, 1, nil); err != nil {
		return nil, fmt.Errorf("run: %s", luaErr(err))
	}
	ret := s.l.Get(-1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		s.l.Pop(1)
		return nil, fmt.Errorf("returned %s, want table", ret.Type())
	}
	s.l.Pop(1)
	return tbl, nil
}

// registerLoaded mirrors the global binding under package.loaded so
// require()-style lookups inside the orchestration module resolve.
func (s *Sandbox) registerLoaded(name string, tbl *lua.LTable) {
	pkg := s.l.GetGlobal("package")
	if loaded, ok := s.l.GetField(pkg, "loaded").(*lua.LTable); ok {
		s.l.SetField(loaded, name, tbl)
	}
}

func (s *Sandbox) fail(format string, v ...interface{}) error {
	err := fmt.Errorf("sandbox [%s]: "+format, append([]interface{}{s.label}, v...)...)
	if s.log != nil {
		s.log.Printf("%v", err)
	}
	return err
}

// luaErr extracts the interpreter's own error message, with a fallback
// when none is available.
func luaErr(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}
