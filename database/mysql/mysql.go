// Package mysql registers the MySQL migration adapter.
package mysql

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/spoolworks/luamigrate/database"
)

func init() {
	database.Register(database.MySQL, &MySQL{})
}

var ErrNilInstance = fmt.Errorf("mysql: no database instance")

type MySQL struct{}

func (m *MySQL) Open(dsn string) (database.Adapter, error) {
	db, err := sql.Open("mysql", dsn)
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
		Eng:       database.MySQL,
		Isolation: sql.LevelReadCommitted,
	}, nil
}
