package database

import (
	"fmt"
	"strings"
)

// Engine identifies one of the supported database engines.
type Engine int

const (
	PostgreSQL Engine = iota + 1
	MySQL
	SQLite
	DB2
)

// String returns the canonical engine name. These names double as the Lua
// adapter module names and as keys into the orchestration module's
// `defaults` table, so they must stay stable.
func (e Engine) String() string {
	switch e {
	case PostgreSQL:
		return "postgresql"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case DB2:
		return "db2"
	}
	return fmt.Sprintf("engine(%d)", int(e))
}

// Engines returns all supported engines in a fixed order.
func Engines() []Engine {
	return []Engine{PostgreSQL, MySQL, SQLite, DB2}
}

// ParseEngine normalizes a free-form configuration string to an Engine.
// Common aliases are accepted; anything else is an error, never a silent
// default.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgsql", "pg":
		return PostgreSQL, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "db2", "ibmdb2":
		return DB2, nil
	}
	return 0, fmt.Errorf("database: unsupported engine type %q", s)
}
