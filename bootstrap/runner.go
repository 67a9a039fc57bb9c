// Package bootstrap probes a freshly connected lead database for existing
// migration state. The bootstrap query is expected to fail on an empty,
// unmigrated database; that failure is a normal signal, never a propagated
// error.
package bootstrap

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Status discriminators carried in the `type` field of bootstrap rows.
// Inherited from the schema design; treat as an opaque protocol.
const (
	// StatusLoaded tags a migration recorded as loaded but not applied.
	StatusLoaded = 1000
	// StatusInstalled tags a migration recorded as applied.
	StatusInstalled = 1003
)

// DefaultQuery is the built-in bootstrap query used when the connection
// configuration supplies none. Each row is one JSON document describing a
// queries-table entry.
const DefaultQuery = `SELECT row_to_json(q) FROM queries q`

// DefaultTimeout bounds the bootstrap query. Kept short: on an empty
// database the query fails immediately anyway.
const DefaultTimeout = time.Second

// Logger accepts a logging sink.
type Logger interface {
	Printf(format string, v ...interface{})
	Verbose() bool
}

// Outcome is the result of one bootstrap run. Version fields hold -1 while
// undetermined and 0 when the run confirmed no migrations of that kind.
type Outcome struct {
	DatabaseName     string
	AvailableVersion int64
	InstalledVersion int64
	EmptyDatabase    bool
}

// Runner executes the bootstrap query for a lead connection and signals
// completion to waiters. The completion broadcast fires on every run,
// successful or not, so callers blocking on Wait never hang.
type Runner struct {
	// Query overrides DefaultQuery when non-empty.
	Query string
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
	Log     Logger

	mu        sync.Mutex
	cond      *sync.Cond
	completed bool
	cache     *QueryCache
}

func NewRunner() *Runner {
	r := &Runner{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Cache returns the query template cache, which exists once a run has
// requested population.
func (r *Runner) Cache() *QueryCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache
}

// Wait blocks until a bootstrap run has completed or the context ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.mu.Lock()
		for !r.completed {
			r.cond.Wait()
		}
		r.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// the helper goroutine exits on the next broadcast
		return ctx.Err()
	}
}

// Run executes the bootstrap query against db and derives the migration
// outcome. A query failure means the queries table does not exist yet:
// the database is confirmed empty and both versions are 0.
func (r *Runner) Run(ctx context.Context, db *sql.DB, databaseName string, populateCache bool) Outcome {
	defer r.signalCompleted()

	out := Outcome{
		DatabaseName:     databaseName,
		AvailableVersion: -1,
		InstalledVersion: -1,
	}

	query := r.Query
	if query == "" {
		query = DefaultQuery
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, query)
	if err != nil {
		// expected on an unmigrated database
		if r.Log != nil {
			r.Log.Printf("bootstrap query failed for %s, treating database as empty: %v", databaseName, err)
		}
		out.EmptyDatabase = true
		out.AvailableVersion = 0
		out.InstalledVersion = 0
		return out
	}
	defer func() {
		_ = rows.Close()
	}()

	var cache *QueryCache
	if populateCache {
		cache = r.ensureCache()
	}

	out.AvailableVersion = 0
	out.InstalledVersion = 0
	parsed := 0
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			if r.Log != nil {
				r.Log.Printf("bootstrap row scan failed for %s: %v", databaseName, err)
			}
			continue
		}
		r.parseRow(doc, &out, cache)
		parsed++
	}
	if err := rows.Err(); err != nil && r.Log != nil {
		r.Log.Printf("bootstrap row iteration for %s: %v", databaseName, err)
	}

	if r.Log != nil {
		r.Log.Printf("bootstrap for %s: %d rows, available=%d installed=%d",
			databaseName, parsed, out.AvailableVersion, out.InstalledVersion)
	}
	return out
}

// parseRow folds one JSON row into the running outcome and, when a cache
// is supplied, inserts well-formed query template rows. Malformed or
// partial rows are skipped, not fatal.
func (r *Runner) parseRow(doc string, out *Outcome, cache *QueryCache) {
	typ := gjson.Get(doc, "type")
	if !typ.Exists() || typ.Type != gjson.Number {
		return
	}

	version := gjson.Get(doc, "version").Int()
	switch typ.Int() {
	case StatusLoaded:
		if version > out.AvailableVersion {
			out.AvailableVersion = version
		}
	case StatusInstalled:
		if version > out.InstalledVersion {
			out.InstalledVersion = version
		}
	}

	if cache == nil {
		return
	}
	e, ok := templateEntry(doc)
	if !ok {
		return
	}
	cache.Put(e)
}

// templateEntry extracts a QTC entry; every field must be present and
// correctly typed.
func templateEntry(doc string) (Entry, bool) {
	ref := gjson.Get(doc, "query_ref")
	tmpl := gjson.Get(doc, "sql_template")
	desc := gjson.Get(doc, "description")
	queue := gjson.Get(doc, "queue_type")
	timeout := gjson.Get(doc, "timeout_seconds")

	if ref.Type != gjson.Number || timeout.Type != gjson.Number {
		return Entry{}, false
	}
	if tmpl.Type != gjson.String || desc.Type != gjson.String || queue.Type != gjson.String {
		return Entry{}, false
	}
	return Entry{
		QueryRef:       int(ref.Int()),
		SQLTemplate:    tmpl.String(),
		Description:    desc.String(),
		QueueType:      queue.String(),
		TimeoutSeconds: int(timeout.Int()),
	}, true
}

func (r *Runner) ensureCache() *QueryCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = NewQueryCache(DefaultCacheSize)
	}
	return r.cache
}

func (r *Runner) signalCompleted() {
	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}
