package bootstrap

import (
	"github.com/bluele/gcache"
)

// DefaultCacheSize bounds the query template cache.
const DefaultCacheSize = 512

// Entry is one cacheable query template row from the bootstrap result.
type Entry struct {
	QueryRef       int
	SQLTemplate    string
	Description    string
	QueueType      string
	TimeoutSeconds int
}

// QueryCache is the in-memory query template cache (QTC), keyed by query
// reference. Created lazily on the first bootstrap run that requests
// population.
type QueryCache struct {
	c gcache.Cache
}

func NewQueryCache(size int) *QueryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &QueryCache{c: gcache.New(size).LRU().Build()}
}

func (q *QueryCache) Put(e Entry) {
	// gcache LRU Set never fails
	_ = q.c.Set(e.QueryRef, e)
}

func (q *QueryCache) Get(queryRef int) (Entry, bool) {
	v, err := q.c.Get(queryRef)
	if err != nil {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

func (q *QueryCache) Len() int {
	return q.c.Len(false)
}
