package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE rows (k TEXT, v INTEGER)`)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err = db.Exec(`INSERT INTO rows (k, v) VALUES (?, ?)`, fmt.Sprintf("p%d", i), i*10)
		require.NoError(t, err)
	}
	return db
}

func scanRow(rows *sql.Rows) (Row, error) {
	var key string
	var v int64
	if err := rows.Scan(&key, &v); err != nil {
		return Row{}, err
	}
	return Row{Key: key, Values: []any{v}}, nil
}

func TestEachVisitsEveryRowInKeyOrderAcrossBatches(t *testing.T) {
	db := openTestDB(t)
	fetch := func(ctx context.Context, afterKey string, limit int) (*sql.Rows, error) {
		return db.QueryContext(ctx, `SELECT k, v FROM rows WHERE k > ? ORDER BY k LIMIT ?`, afterKey, limit)
	}
	r := New(fetch, scanRow, Config{BatchSize: 2})

	var visited []string
	err := r.Each(context.Background(), func(row Row) error {
		visited = append(visited, row.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, visited)
}

func TestEachStopsWhenVisitReturnsError(t *testing.T) {
	db := openTestDB(t)
	fetch := func(ctx context.Context, afterKey string, limit int) (*sql.Rows, error) {
		return db.QueryContext(ctx, `SELECT k, v FROM rows WHERE k > ? ORDER BY k LIMIT ?`, afterKey, limit)
	}
	r := New(fetch, scanRow, Config{BatchSize: 2})

	stop := errors.New("stop")
	var visited []string
	err := r.Each(context.Background(), func(row Row) error {
		visited = append(visited, row.Key)
		if row.Key == "p3" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"p1", "p2", "p3"}, visited)
}

func TestEachRetriesTransientFetchErrorThenSucceeds(t *testing.T) {
	db := openTestDB(t)
	attempts := 0
	fetch := func(ctx context.Context, afterKey string, limit int) (*sql.Rows, error) {
		if afterKey == "" && attempts == 0 {
			attempts++
			return nil, errors.New("transient failure")
		}
		return db.QueryContext(ctx, `SELECT k, v FROM rows WHERE k > ? ORDER BY k LIMIT ?`, afterKey, limit)
	}
	r := New(fetch, scanRow, Config{BatchSize: 10, MaxElapsedTime: backoff.NewConstantBackOff(time.Millisecond)})

	var visited []string
	err := r.Each(context.Background(), func(row Row) error {
		visited = append(visited, row.Key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, visited)
}

func TestEachSurfacesPermanentScanErrorWithoutRetrying(t *testing.T) {
	db := openTestDB(t)
	attempts := 0
	fetch := func(ctx context.Context, afterKey string, limit int) (*sql.Rows, error) {
		attempts++
		return db.QueryContext(ctx, `SELECT k, v FROM rows WHERE k > ? ORDER BY k LIMIT ?`, afterKey, limit)
	}
	badScan := func(rows *sql.Rows) (Row, error) {
		return Row{}, errors.New("bad scan")
	}
	r := New(fetch, badScan, Config{BatchSize: 10, MaxElapsedTime: backoff.NewConstantBackOff(time.Millisecond)})

	err := r.Each(context.Background(), func(Row) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
