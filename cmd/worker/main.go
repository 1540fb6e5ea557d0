package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/svap-labs/svap/internal/config"
	"github.com/svap-labs/svap/internal/embedding"
	"github.com/svap-labs/svap/internal/llm"
	"github.com/svap-labs/svap/internal/migrate"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/queue"
	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/internal/regulatory"
	"github.com/svap-labs/svap/internal/stages"
	"github.com/svap-labs/svap/internal/store"
	"github.com/svap-labs/svap/internal/store/postgres"
	vk "github.com/svap-labs/svap/internal/store/valkey"
	"github.com/svap-labs/svap/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := migrate.New(pool, logger).Run(ctx); err != nil {
		logger.Error("schema migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	s := store.New(pool)

	// Valkey
	vkClient, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	// Bedrock
	llmClient, err := llm.NewClient(ctx, cfg.Bedrock, logger)
	if err != nil {
		logger.Error("failed to init bedrock client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("bedrock client ready", slog.String("model", llmClient.ModelID()))

	// Embeddings are optional; keyword retrieval works without them.
	var embedder embedding.Embedder
	if cfg.Bedrock.EmbedModelID != "" {
		embedClient, err := embedding.NewClient(ctx, cfg.Bedrock)
		if err != nil {
			logger.Warn("embedder init failed, keyword retrieval only", slog.String("error", err.Error()))
		} else {
			embedder = embedClient
			logger.Info("embeddings enabled", slog.String("model", embedClient.ModelID()))
		}
	}

	env := &stages.Env{
		Store:    s,
		LLM:      llmClient,
		Context:  rag.NewRetriever(s, embedder, logger),
		Sources:  regulatory.New(),
		Pipeline: cfg.Pipeline,
		Logger:   logger,
	}
	runner := worker.New(
		pipeline.NewOrchestrator(s, logger),
		pipeline.NewGateCoordinator(s, logger),
		env, logger)

	consumerID := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
	consumer := queue.NewConsumer(vkClient, consumerID, logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to create consumer group", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("consumer_id", consumerID))

	err = consumer.Consume(ctx, runner.Handle)
	if err != nil && ctx.Err() == nil {
		logger.Error("consumer stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("worker stopped")
}
