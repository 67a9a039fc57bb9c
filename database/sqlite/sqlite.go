// Package sqlite registers the SQLite migration adapter.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spoolworks/luamigrate/database"
)

func init() {
	database.Register(database.SQLite, &SQLite{})
}

var ErrNilInstance = fmt.Errorf("sqlite: no database instance")

type SQLite struct{}

func (s *SQLite) Open(dsn string) (database.Adapter, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return WithInstance(db)
}

// WithInstance wraps an existing connection. SQLite transactions are
// serializable regardless of the requested level, so the default level is
// passed through.
func WithInstance(db *sql.DB) (database.Adapter, error) {
	if db == nil {
		return nil, ErrNilInstance
	}
	return &database.SQLAdapter{
		DB:        db,
		Eng:       database.SQLite,
		Isolation: sql.LevelDefault,
	}, nil
}
