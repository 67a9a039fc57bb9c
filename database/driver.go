// Package database applies generated migration SQL transactionally against
// one of the supported engines. The transaction protocol (begin, execute
// each statement, commit or roll back as a unit) is implemented once;
// engine subpackages contribute thin adapters that register themselves
// here, in the spirit of database/sql driver registration.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultConnectTimeout bounds the backoff-retried ping performed by Open
// after the driver connection is created.
var DefaultConnectTimeout = 15 * time.Second

// Tx is one engine transaction while a migration is applied. Cleanup must
// release any per-statement resources and is safe to call after either
// Commit or Rollback.
type Tx interface {
	Exec(ctx context.Context, statement string) error
	Commit() error
	Rollback() error
	Cleanup()
}

// Adapter is the engine-capability surface the transaction executor runs
// against. Implementations are registered per engine by the subpackages.
type Adapter interface {
	Engine() Engine
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Driver opens adapters from a DSN. Open is called once per connection.
type Driver interface {
	Open(dsn string) (Adapter, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[Engine]Driver)
)

// Register globally registers a driver for an engine.
func Register(e Engine, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("database: Register driver is nil")
	}
	if _, dup := drivers[e]; dup {
		panic("database: Register called twice for engine " + e.String())
	}
	drivers[e] = d
}

// Open opens an adapter for the engine and verifies connectivity with an
// exponential-backoff ping, bounded by DefaultConnectTimeout. The
// subpackage for the engine must have been imported for its driver to be
// registered.
func Open(ctx context.Context, e Engine, dsn string) (Adapter, error) {
	driversMu.RLock()
	d, ok := drivers[e]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database: unknown engine %v (forgotten import?)", e)
	}

	a, err := d.Open(dsn)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = DefaultConnectTimeout
	if err := backoff.Retry(func() error {
		return a.Ping(ctx)
	}, backoff.WithContext(bo, ctx)); err != nil {
		if cerr := a.Close(); cerr != nil {
			return nil, fmt.Errorf("database: ping %v: %w (close: %v)", e, err, cerr)
		}
		return nil, fmt.Errorf("database: ping %v: %w", e, err)
	}
	return a, nil
}

// SQLAdapter adapts a *database/sql.DB to Adapter. The four engine
// subpackages differ only in driver name and isolation mapping; everything
// else lives here.
type SQLAdapter struct {
	DB        *sql.DB
	Eng       Engine
	Isolation sql.IsolationLevel
}

func (a *SQLAdapter) Engine() Engine { return a.Eng }

func (a *SQLAdapter) Ping(ctx context.Context) error { return a.DB.PingContext(ctx) }

func (a *SQLAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := a.DB.BeginTx(ctx, &sql.TxOptions{Isolation: a.Isolation})
	if err != nil {
		return nil, &Error{OrigErr: err, Err: "transaction start failed"}
	}
	return newSQLTx(tx), nil
}

func (a *SQLAdapter) Close() error { return a.DB.Close() }
