package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/svap-labs/svap/internal/config"
	"github.com/svap-labs/svap/internal/embedding"
	"github.com/svap-labs/svap/internal/llm"
	"github.com/svap-labs/svap/internal/migrate"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/internal/regulatory"
	"github.com/svap-labs/svap/internal/stages"
	"github.com/svap-labs/svap/internal/store"
	"github.com/svap-labs/svap/internal/store/postgres"
)

// cliEnv wires the shared collaborators every subcommand needs.
type cliEnv struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	store  *store.Store
	logger *slog.Logger
}

func newCLIEnv(ctx context.Context) (*cliEnv, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := migrate.New(pool, logger).Run(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &cliEnv{cfg: cfg, pool: pool, store: store.New(pool), logger: logger}, nil
}

func (e *cliEnv) Close() {
	e.pool.Close()
}

// stageEnv builds the model-backed execution environment for running stages.
func (e *cliEnv) stageEnv(ctx context.Context) (*stages.Env, error) {
	llmClient, err := llm.NewClient(ctx, e.cfg.Bedrock, e.logger)
	if err != nil {
		return nil, fmt.Errorf("init bedrock client: %w", err)
	}

	var embedder embedding.Embedder
	if e.cfg.Bedrock.EmbedModelID != "" {
		embedClient, err := embedding.NewClient(ctx, e.cfg.Bedrock)
		if err != nil {
			e.logger.Warn("embedder init failed, keyword retrieval only", "error", err)
		} else {
			embedder = embedClient
		}
	}

	return &stages.Env{
		Store:    e.store,
		LLM:      llmClient,
		Context:  rag.NewRetriever(e.store, embedder, e.logger),
		Sources:  regulatory.New(),
		Pipeline: e.cfg.Pipeline,
		Logger:   e.logger,
	}, nil
}

// resolveRun returns the explicit run ID, or the latest run when empty.
func (e *cliEnv) resolveRun(ctx context.Context, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	latest, err := e.store.LatestRun(ctx)
	if errors.Is(err, pipeline.ErrNoRun) {
		return "", errors.New("no pipeline runs found; create one with 'svap run'")
	}
	return latest, err
}
