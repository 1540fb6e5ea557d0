package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/svap-labs/svap/internal/api"
	"github.com/svap-labs/svap/internal/config"
	"github.com/svap-labs/svap/internal/export"
	"github.com/svap-labs/svap/internal/migrate"
	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/queue"
	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/internal/store"
	minioclient "github.com/svap-labs/svap/internal/store/minio"
	"github.com/svap-labs/svap/internal/store/postgres"
	vk "github.com/svap-labs/svap/internal/store/valkey"
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

	ctx := context.Background()
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

	snapshot, err := json.Marshal(cfg.Pipeline)
	if err != nil {
		logger.Error("failed to snapshot config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	deps := &api.RouterDeps{
		Gates:          pipeline.NewGateCoordinator(s, logger),
		Ingester:       rag.NewIngester(s, logger),
		ConfigSnapshot: snapshot,
	}

	// Valkey (required for async stage execution)
	vkClient, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Warn("valkey connection failed, stage execution disabled", slog.String("error", err.Error()))
	} else {
		deps.Producer = queue.NewProducer(vkClient)
		defer vkClient.Close()
		logger.Info("connected to valkey")
	}

	// MinIO is optional; it mirrors export artifacts to object storage.
	var uploader export.Uploader
	if cfg.MinIO.Enabled() {
		mc, err := minioclient.NewClient(cfg.MinIO)
		if err != nil {
			logger.Warn("minio connection failed, export upload disabled", slog.String("error", err.Error()))
		} else {
			if err := mc.EnsureBucket(ctx); err != nil {
				logger.Warn("minio bucket check failed", slog.String("error", err.Error()))
			}
			uploader = mc
			logger.Info("connected to minio", slog.String("bucket", mc.Bucket()))
		}
	}
	deps.Exporter = export.New(s, uploader, cfg.Pipeline.ExportDir, logger)

	router := api.NewRouter(logger, s, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
