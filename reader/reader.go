// Package reader streams a dataset's result rows out of a backend in
// key-ordered batches, retrying a failed batch with exponential
// backoff and resuming from the last successfully read key rather
// than restarting the whole query. Grounded on cdc-sink-redshift's
// retry loop around its Redshift COPY reader, adapted from a
// fire-and-forget bulk load to a paginated pull reader.
package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// Row is one result row: the patient key plus the variable values in
// column order, exactly as PageFunc returns them from *sql.Rows.Scan.
type Row struct {
	Key    string
	Values []any
}

// PageFunc fetches up to limit rows with key > afterKey (empty
// afterKey means "from the start"), ordered by key. It is supplied by
// the caller because the underlying SQL (column list, temp table
// name) is dataset-specific; reader only owns pagination, retry and
// resumption.
type PageFunc func(ctx context.Context, afterKey string, limit int) (*sql.Rows, error)

// Config controls batch size and retry behavior.
type Config struct {
	BatchSize      int
	MaxElapsedTime backoff.BackOff // nil uses backoff.NewExponentialBackOff()
}

// Reader pulls a dataset's rows from a backend in batches, retrying
// on transient failure and resuming from the last key it successfully
// read so a reconnect never re-delivers or drops a row.
type Reader struct {
	fetch   PageFunc
	scan    func(*sql.Rows) (Row, error)
	batch   int
	backoff func() backoff.BackOff
}

func New(fetch PageFunc, scan func(*sql.Rows) (Row, error), cfg Config) *Reader {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	mk := func() backoff.BackOff {
		if cfg.MaxElapsedTime != nil {
			return cfg.MaxElapsedTime
		}
		return backoff.NewExponentialBackOff()
	}
	return &Reader{fetch: fetch, scan: scan, batch: batch, backoff: mk}
}

// Each calls visit once per row, in key order, until the source is
// exhausted or visit returns an error (which Each returns unwrapped,
// stopping iteration).
func (r *Reader) Each(ctx context.Context, visit func(Row) error) error {
	afterKey := ""
	for {
		rows, n, err := r.fetchPageWithRetry(ctx, afterKey)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		for _, row := range rows {
			if err := visit(row); err != nil {
				return err
			}
			afterKey = row.Key
		}
		if n < r.batch {
			return nil
		}
	}
}

func (r *Reader) fetchPageWithRetry(ctx context.Context, afterKey string) ([]Row, int, error) {
	var out []Row
	op := func() error {
		out = nil
		sqlRows, err := r.fetch(ctx, afterKey, r.batch)
		if err != nil {
			return fmt.Errorf("reader: fetching page after %q: %w", afterKey, err)
		}
		defer sqlRows.Close()
		for sqlRows.Next() {
			row, err := r.scan(sqlRows)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("reader: scanning row: %w", err))
			}
			out = append(out, row)
		}
		return sqlRows.Err()
	}

	bo := backoff.WithContext(r.backoff(), ctx)
	err := backoff.Retry(op, bo)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, 0, perm.Err
		}
		return nil, 0, err
	}
	return out, len(out), nil
}
