// Package postgres registers the PostgreSQL migration adapter.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/spoolworks/luamigrate/database"
)

func init() {
	database.Register(database.PostgreSQL, &Postgres{})
}

var ErrNilInstance = fmt.Errorf("postgres: no database instance")

type Postgres struct{}

func (p *Postgres) Open(dsn string) (database.Adapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return WithInstance(db)
}

// WithInstance wraps an existing connection. The caller keeps ownership of
// the *sql.DB unless the adapter's Close is used.
func WithInstance(db *sql.DB) (database.Adapter, error) {
	if db == nil {
		return nil, ErrNilInstance
	}
	return &database.SQLAdapter{
		DB:        db,
		Eng:       database.PostgreSQL,
		Isolation: sql.LevelReadCommitted,
	}, nil
}
