package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-multierror"
)

// ErrNoStatements reports generated SQL that split into zero executable
// statements. Every migration file is expected to produce schema-affecting
// SQL, so this is a failure, not a skip.
var ErrNoStatements = fmt.Errorf("database: no executable statements in generated SQL")

// Logger accepts a logging sink. Mirrors the root package interface so
// engine-level execution can log per-statement outcomes without an import
// cycle.
type Logger interface {
	Printf(format string, v ...interface{})
	Verbose() bool
}

// Apply splits the generated SQL of one migration into statements and runs
// them in a single transaction against the adapter. Either every statement
// commits or none do. label identifies the migration file in logs.
func Apply(ctx context.Context, a Adapter, sqlText, label string, log Logger) error {
	stmts := SplitStatements(sqlText)
	if len(stmts) == 0 {
		return ErrNoStatements
	}

	tx, err := a.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Cleanup()

	for i, st := range stmts {
		if err := tx.Exec(ctx, st); err != nil {
			execErr := &Error{OrigErr: err, Err: fmt.Sprintf("statement %d/%d of %s failed", i+1, len(stmts), label), Query: queryExcerpt(st)}
			if rbErr := tx.Rollback(); rbErr != nil {
				return multierror.Append(execErr, rbErr)
			}
			if log != nil {
				log.Printf("rolled back %s after %d of %d statements", label, i, len(stmts))
			}
			return execErr
		}
		if log != nil && log.Verbose() {
			log.Printf("executed statement %d/%d of %s", i+1, len(stmts), label)
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{OrigErr: err, Err: fmt.Sprintf("commit of %s failed", label)}
	}
	if log != nil {
		log.Printf("committed %d statements of %s", len(stmts), label)
	}
	return nil
}

// sqlTx executes statements inside one *sql.Tx, caching prepared
// statements by a content hash so repeated identical statements reuse a
// plan. The cache lives for the duration of the transaction and is
// released by Cleanup.
type sqlTx struct {
	tx    *sql.Tx
	stmts map[uint64]*sql.Stmt
}

func newSQLTx(tx *sql.Tx) *sqlTx {
	return &sqlTx{tx: tx, stmts: make(map[uint64]*sql.Stmt)}
}

func (t *sqlTx) Exec(ctx context.Context, statement string) error {
	key := xxhash.Sum64String(statement)
	ps, ok := t.stmts[key]
	if !ok {
		var err error
		ps, err = t.tx.PrepareContext(ctx, statement)
		if err != nil {
			return err
		}
		t.stmts[key] = ps
	}
	_, err := ps.ExecContext(ctx)
	return err
}

func (t *sqlTx) Commit() error { return t.tx.Commit() }

func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

func (t *sqlTx) Cleanup() {
	for key, ps := range t.stmts {
		// close errors are not actionable after commit/rollback
		_ = ps.Close()
		delete(t.stmts, key)
	}
}
