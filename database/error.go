package database

import "fmt"

// Error should be used for errors involving statements ran against the
// database.
type Error struct {
	// Query is a query excerpt
	Query []byte

	// Err is a useful/helping error message for humans
	Err string

	// OrigErr is the underlying error
	OrigErr error
}

func (e *Error) Error() string {
	if len(e.Err) == 0 {
		return fmt.Sprintf("%v: %s", e.OrigErr, e.Query)
	}
	if len(e.Query) == 0 {
		return fmt.Sprintf("%v (details: %v)", e.Err, e.OrigErr)
	}
	return fmt.Sprintf("%v: %s (details: %v)", e.Err, e.Query, e.OrigErr)
}

func (e *Error) Unwrap() error { return e.OrigErr }

// queryExcerpt trims a statement for inclusion in an Error so log lines
// stay bounded.
func queryExcerpt(statement string) []byte {
	const max = 120
	if len(statement) > max {
		return []byte(statement[:max] + "...")
	}
	return []byte(statement)
}
