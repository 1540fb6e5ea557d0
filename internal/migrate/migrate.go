// Package migrate brings the database schema to the current version on
// startup. Concurrent migrators are serialized by a transaction-scoped
// advisory lock: whichever node acquires it applies the pending steps, and
// every other node blocks on the lock, then observes the already-updated
// version and applies nothing.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// lockKey is the advisory lock namespace shared by every migrator instance.
// The value is arbitrary but must never change between releases.
const lockKey = 0x53564150 // "SVAP"

// Step is one versioned schema change. Statements must be idempotent
// (CREATE TABLE IF NOT EXISTS and friends) so a step interrupted between
// DDL and commit can be replayed safely.
type Step struct {
	Version    int
	Name       string
	Statements []string
}

// txBeginner is the slice of *pgxpool.Pool the migrator needs. Tests
// substitute a recording implementation.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type Migrator struct {
	db     txBeginner
	steps  []Step
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Migrator {
	return &Migrator{db: pool, steps: Steps(), logger: logger}
}

// Run applies every step whose version exceeds the recorded schema version.
// Safe to call from any number of nodes concurrently.
func (m *Migrator) Run(ctx context.Context) error {
	if err := validateSteps(m.steps); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Blocks until any concurrent migrator commits or rolls back. Released
	// automatically at transaction end.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(lockKey)); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (
		     id int PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		     version int NOT NULL,
		     applied_at timestamptz NOT NULL DEFAULT now()
		 )`); err != nil {
		return fmt.Errorf("ensure schema_version: %w", err)
	}

	current, err := currentVersion(ctx, tx)
	if err != nil {
		return err
	}

	applied := 0
	for _, step := range m.steps {
		if step.Version <= current {
			continue
		}
		for _, sql := range step.Statements {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", step.Version, step.Name, err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_version (id, version, applied_at) VALUES (1, $1, now())
			 ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, applied_at = EXCLUDED.applied_at`,
			step.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", step.Version, err)
		}
		m.logger.Info("applied migration", "version", step.Version, "name", step.Name)
		applied++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}

	if applied == 0 {
		m.logger.Debug("schema up to date", "version", current)
	}
	return nil
}

func currentVersion(ctx context.Context, tx pgx.Tx) (int, error) {
	var v int
	err := tx.QueryRow(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// validateSteps rejects step lists whose versions are not strictly
// increasing, which would make the skip check ambiguous.
func validateSteps(steps []Step) error {
	prev := 0
	for _, s := range steps {
		if s.Version <= prev {
			return fmt.Errorf("migration versions must be strictly increasing: %d after %d", s.Version, prev)
		}
		if len(s.Statements) == 0 {
			return fmt.Errorf("migration %d (%s) has no statements", s.Version, s.Name)
		}
		prev = s.Version
	}
	return nil
}
