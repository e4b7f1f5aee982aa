package writer

import "context"

type sendFunc func(ctx context.Context, table string, rows []any) error

// tableBuffer accumulates rows for one table until limit is reached.
type tableBuffer[T any] struct {
	table string
	limit int
	rows  []T
}

func newTableBuffer[T any](table string, limit int) *tableBuffer[T] {
	return &tableBuffer[T]{table: table, limit: limit, rows: make([]T, 0, limit)}
}

// add reports whether the buffer is full.
func (b *tableBuffer[T]) add(row T) bool {
	b.rows = append(b.rows, row)
	return len(b.rows) >= b.limit
}

func (b *tableBuffer[T]) pending() int {
	return len(b.rows)
}

// flush keeps the rows buffered when send fails so a later flush retries them.
func (b *tableBuffer[T]) flush(ctx context.Context, send sendFunc) error {
	if len(b.rows) == 0 {
		return nil
	}
	batch := make([]any, len(b.rows))
	for i := range b.rows {
		batch[i] = &b.rows[i]
	}
	if err := send(ctx, b.table, batch); err != nil {
		return err
	}
	clear(b.rows)
	b.rows = b.rows[:0]
	return nil
}
