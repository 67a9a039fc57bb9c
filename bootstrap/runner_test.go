package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEmptyDatabaseIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT row_to_json").
		WillReturnError(errors.New(`relation "queries" does not exist`))

	r := NewRunner()
	out := r.Run(context.Background(), db, "spool", false)

	assert.True(t, out.EmptyDatabase)
	assert.Equal(t, int64(0), out.AvailableVersion)
	assert.Equal(t, int64(0), out.InstalledVersion)
	assert.Equal(t, "spool", out.DatabaseName)
}

func TestRunDerivesVersionsFromRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"row_to_json"}).
		AddRow(`{"type":1000,"version":5}`).
		AddRow(`{"type":1000,"version":7}`).
		AddRow(`{"type":1003,"version":5}`).
		AddRow(`{"type":42,"version":99}`).
		AddRow(`{"no_type":true}`)
	mock.ExpectQuery("SELECT row_to_json").WillReturnRows(rows)

	r := NewRunner()
	out := r.Run(context.Background(), db, "spool", false)

	assert.False(t, out.EmptyDatabase)
	assert.Equal(t, int64(7), out.AvailableVersion)
	assert.Equal(t, int64(5), out.InstalledVersion)
}

func TestRunZeroRowsStillCompletes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT row_to_json").
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}))

	r := NewRunner()
	out := r.Run(context.Background(), db, "spool", false)

	assert.False(t, out.EmptyDatabase)
	assert.Equal(t, int64(0), out.AvailableVersion)
	assert.Equal(t, int64(0), out.InstalledVersion)
}

func TestRunPopulatesQueryCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"row_to_json"}).
		AddRow(`{"type":1003,"version":1,"query_ref":7,"sql_template":"SELECT * FROM jobs WHERE id = ?","description":"job by id","queue_type":"print","timeout_seconds":30}`).
		// malformed QTC rows are skipped, not fatal
		AddRow(`{"type":1003,"version":1,"query_ref":"not-a-number","sql_template":"x","description":"y","queue_type":"z","timeout_seconds":1}`).
		AddRow(`{"type":1003,"version":1,"query_ref":8,"sql_template":"SELECT 1"}`)
	mock.ExpectQuery("SELECT row_to_json").WillReturnRows(rows)

	r := NewRunner()
	out := r.Run(context.Background(), db, "spool", true)
	require.False(t, out.EmptyDatabase)

	cache := r.Cache()
	require.NotNil(t, cache)
	assert.Equal(t, 1, cache.Len())

	e, ok := cache.Get(7)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM jobs WHERE id = ?", e.SQLTemplate)
	assert.Equal(t, "job by id", e.Description)
	assert.Equal(t, "print", e.QueueType)
	assert.Equal(t, 30, e.TimeoutSeconds)

	_, ok = cache.Get(8)
	assert.False(t, ok)
}

func TestRunRespectsConfiguredQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT custom_bootstrap").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(`{"type":1003,"version":2}`))

	r := NewRunner()
	r.Query = "SELECT custom_bootstrap()"
	out := r.Run(context.Background(), db, "spool", false)

	assert.Equal(t, int64(2), out.InstalledVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitReleasedOnFailureToo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT row_to_json").WillReturnError(errors.New("no table"))

	r := NewRunner()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- r.Wait(ctx)
	}()

	r.Run(context.Background(), db, "spool", false)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter hung after bootstrap completion")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	r := NewRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
