package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/tillstock/tillstock-backend/internal/analytics/types"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Inserter streams rows into a named table. *bigquery.Client satisfies it.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Config controls the analytics writer behavior.
type Config struct {
	SalesTable  string
	DrawerTable string
	// BatchSize above 1 holds rows in memory until the batch fills or Flush
	// runs; rows buffered when the process dies are redelivered by Pub/Sub
	// only if their messages were not yet acked.
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

// BigQueryWriter buffers analytics rows per table and streams them with
// retries. It is not safe for concurrent use.
type BigQueryWriter struct {
	client Inserter
	retry  RetryPolicy
	sales  *tableBuffer[types.SaleFactRow]
	drawer *tableBuffer[types.DrawerClosureRow]
}

func New(client Inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	sales, drawer := strings.TrimSpace(cfg.SalesTable), strings.TrimSpace(cfg.DrawerTable)
	if sales == "" {
		return nil, errors.New("sales table is required")
	}
	if drawer == "" {
		return nil, errors.New("drawer table is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &BigQueryWriter{
		client: client,
		retry:  cfg.RetryPolicy.withDefaults(),
		sales:  newTableBuffer[types.SaleFactRow](sales, batch),
		drawer: newTableBuffer[types.DrawerClosureRow](drawer, batch),
	}, nil
}

func (w *BigQueryWriter) InsertSaleFact(ctx context.Context, row types.SaleFactRow) error {
	if w.sales.add(row) {
		return w.sales.flush(ctx, w.insertWithRetry)
	}
	return nil
}

func (w *BigQueryWriter) InsertDrawerClosure(ctx context.Context, row types.DrawerClosureRow) error {
	if w.drawer.add(row) {
		return w.drawer.flush(ctx, w.insertWithRetry)
	}
	return nil
}

// Flush writes every buffered row. Both tables are attempted even when one fails.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	return multierr.Combine(
		w.sales.flush(ctx, w.insertWithRetry),
		w.drawer.flush(ctx, w.insertWithRetry),
	)
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	wait := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !retryable(err) {
			return fmt.Errorf("insert %d rows into %s (attempt %d): %w", len(rows), table, attempt, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, w.retry.MaximumBackoff)
	}
}
