// Package db2 registers the IBM DB2 migration adapter.
package db2

import (
	"database/sql"
	"fmt"

	_ "github.com/ibmdb/go_ibm_db"

	"github.com/spoolworks/luamigrate/database"
)

func init() {
	database.Register(database.DB2, &DB2{})
}

var ErrNilInstance = fmt.Errorf("db2: no database instance")

type DB2 struct{}

func (d *DB2) Open(dsn string) (database.Adapter, error) {
	db, err := sql.Open("go_ibm_db", dsn)
	if err != nil {
		return nil, err
	}
	return WithInstance(db)
}

// WithInstance wraps an existing connection. Read committed maps to DB2's
// cursor stability isolation.
func WithInstance(db *sql.DB) (database.Adapter, error) {
	if db == nil {
		return nil, ErrNilInstance
	}
	return &database.SQLAdapter{
		DB:        db,
		Eng:       database.DB2,
		Isolation: sql.LevelReadCommitted,
	}, nil
}
