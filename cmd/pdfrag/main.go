package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/chunker"
	"github.com/kailas-cloud/pdfrag/internal/config"
	"github.com/kailas-cloud/pdfrag/internal/coordinator"
	"github.com/kailas-cloud/pdfrag/internal/domain"
	logpkg "github.com/kailas-cloud/pdfrag/internal/logger"
	"github.com/kailas-cloud/pdfrag/internal/metrics"
	"github.com/kailas-cloud/pdfrag/internal/pdftext"
	chiTransport "github.com/kailas-cloud/pdfrag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/pdfrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/pdfrag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/pdfrag/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/pdfrag/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/pdfrag/internal/usecase/query"
	"github.com/kailas-cloud/pdfrag/internal/version"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic("failed to load .env: " + err.Error())
	}

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pdfrag server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterWorkflowMetrics()
	metrics.RegisterHTTPMetrics()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()
	logger.Info("Vector index ready", zap.String("driver", cfg.Database.Driver))

	// Embedder chain: one per instruction, sharing the provider settings.
	docEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.DocumentInstruction, be.kv, cfg.Database.KeyPrefix, logger)
	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, be.kv, cfg.Database.KeyPrefix, logger)
	docEmbeddings := embeddinguc.NewService(docEmbedder, cfg.Embedding.Dimensions, cfg.Embedding.Concurrency, logger)
	queryEmbeddings := embeddinguc.NewService(queryEmbedder, cfg.Embedding.Dimensions, 1, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		Config: openaiTransport.Config{
			APIKey:   cfg.Generation.APIKey,
			BaseURL:  cfg.Generation.BaseURL,
			Model:    cfg.Generation.Model,
			Provider: cfg.Generation.Provider,
			Logger:   logger,
		},
		Temperature:  cfg.Generation.Temperature,
		MaxTokens:    cfg.Generation.MaxTokens,
		SystemPrompt: cfg.Generation.SystemPrompt,
	})

	chunk, err := chunker.New(chunker.Config{
		Strategy: cfg.Chunking.Strategy,
		Size:     cfg.Chunking.Size,
		Overlap:  cfg.Chunking.OverlapOrZero(),
	})
	if err != nil {
		return fmt.Errorf("create chunker: %w", err)
	}

	ingestSvc := ingestuc.New(pdftext.New(logger), chunk, docEmbeddings, be.index).
		WithReplace(*cfg.Index.ReplaceOnIngest)
	querySvc := queryuc.New(queryEmbeddings, be.index, generator).
		WithMaxTopK(cfg.Index.MaxTopK)

	engine := coordinator.New(be.runs, coordinator.Config{
		Workers:     cfg.Coordinator.Workers,
		MaxAttempts: cfg.Coordinator.MaxAttempts,
		RetryBase:   cfg.Coordinator.RetryBase(),
		RetryMax:    cfg.Coordinator.RetryMax(),
	}, logger)
	if err := registerFunctions(engine, ingestSvc, querySvc); err != nil {
		return err
	}

	healthSvc := healthuc.New(be.index, newEmbeddingHealthChecker(docEmbedder)).WithGeneration(generator)

	server := chiTransport.NewServer(engine, healthSvc, cfg.Coordinator.EventKey, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	// Queued runs are cancelled; in-flight runs get the rest of the shutdown window.
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during coordinator shutdown", zap.Error(err))
	}
	return nil
}

func registerFunctions(engine *coordinator.Engine, ingestSvc *ingestuc.Service, querySvc *queryuc.Service) error {
	fns := []coordinator.Function{
		coordinator.IngestFunction(ingestuc.FunctionID, func(ctx context.Context, p domain.IngestPayload) (map[string]any, error) {
			res, err := ingestSvc.Ingest(ctx, p)
			if err != nil {
				return nil, err //nolint:wrapcheck // kind is recorded on the run
			}
			return res.Output(), nil
		}),
		coordinator.QueryFunction(queryuc.FunctionID, func(ctx context.Context, p domain.QueryPayload) (map[string]any, error) {
			ans, err := querySvc.Ask(ctx, p)
			if err != nil {
				return nil, err //nolint:wrapcheck // kind is recorded on the run
			}
			return ans.Output(), nil
		}),
	}
	for _, fn := range fns {
		if err := engine.Register(fn); err != nil {
			return fmt.Errorf("register %s: %w", fn.ID, err)
		}
	}
	return nil
}
