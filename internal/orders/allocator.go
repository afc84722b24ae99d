package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Sequencer hands out strictly increasing values. The production
// implementation is a Postgres sequence, which is atomic under concurrent
// callers; counting existing rows is not and must not be reintroduced.
type Sequencer interface {
	Next(ctx context.Context) (int64, error)
}

type PostgresSequence struct {
	db *sql.DB
}

func NewPostgresSequence(db *sql.DB) *PostgresSequence {
	return &PostgresSequence{db: db}
}

func (s *PostgresSequence) Next(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("advance order number sequence: %w", err)
	}
	return n, nil
}

// Allocator mints order numbers: a millisecond timestamp prefix keeps them
// sortable by creation time, the sequence suffix disambiguates allocations
// within the same millisecond.
type Allocator struct {
	seq Sequencer
	now func() time.Time
}

func NewAllocator(seq Sequencer) *Allocator {
	return &Allocator{seq: seq, now: time.Now}
}

func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	n, err := a.seq.Next(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%d-%d", a.now().UnixMilli(), n), nil
}
