package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/svap-labs/svap/internal/store/postgres"
)

type Store struct {
	*postgres.Queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Queries: postgres.New(pool),
		pool:    pool,
	}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) WithTx(ctx context.Context, fn func(*postgres.Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeleteRun removes a run and everything derived from it in one transaction:
// either every child table and the run row go, or none do. Shadows the
// promoted Queries method, which runs its deletes on the bare connection.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.WithTx(ctx, func(q *postgres.Queries) error {
		return q.DeleteRun(ctx, runID)
	})
}

// WipeCorpus clears the shared extraction corpus and every derived result in
// one transaction. Run rows and the stage log survive.
func (s *Store) WipeCorpus(ctx context.Context) error {
	return s.WithTx(ctx, func(q *postgres.Queries) error {
		return q.WipeCorpus(ctx)
	})
}
