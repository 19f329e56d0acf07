package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/pdfrag/internal/config"
	"github.com/kailas-cloud/pdfrag/internal/coordinator"
	"github.com/kailas-cloud/pdfrag/internal/db"
	dbRedis "github.com/kailas-cloud/pdfrag/internal/db/redis"
	"github.com/kailas-cloud/pdfrag/internal/domain"
	"github.com/kailas-cloud/pdfrag/internal/index"
	"github.com/kailas-cloud/pdfrag/internal/metrics"
	chunkrepo "github.com/kailas-cloud/pdfrag/internal/repository/chunk"
	"github.com/kailas-cloud/pdfrag/internal/repository/embcache"
	"github.com/kailas-cloud/pdfrag/internal/repository/memory"
	"github.com/kailas-cloud/pdfrag/internal/repository/pgvector"
	runrepo "github.com/kailas-cloud/pdfrag/internal/repository/run"
	openaiTransport "github.com/kailas-cloud/pdfrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/pdfrag/internal/usecase/embedding"
)

// backend bundles the vector index, the optional KV store and the run store.
type backend struct {
	index index.Index
	kv    db.KVStore // nil unless the driver is redis or valkey
	runs  coordinator.RunStore
	close func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	dim := cfg.Embedding.Dimensions
	be := &backend{close: func() {}}

	switch cfg.Database.Driver {
	case config.DriverRedis, config.DriverValkey:
		// Valkey speaks the same FT.* dialect; one rueidis store serves both.
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}

		repo := chunkrepo.New(store, dim).
			WithPrefix(cfg.Database.KeyPrefix + "chunk:").
			WithHNSW(chunkrepo.HNSWConfig{M: cfg.Index.HNSWM, EFConstruct: cfg.Index.HNSWEFConstruct})
		if err := repo.EnsureIndex(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure index: %w", err)
		}
		be.index = repo
		be.kv = store
		be.close = store.Close

	case config.DriverPgvector:
		pool, err := pgvector.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err //nolint:wrapcheck // already prefixed
		}
		repo := pgvector.New(pool, dim)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err //nolint:wrapcheck // already prefixed
		}
		be.index = repo
		be.close = pool.Close

	case config.DriverMemory:
		be.index = memory.New(dim)

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	if cfg.Coordinator.RunStore == "database" && be.kv != nil {
		be.runs = runrepo.New(be.kv, cfg.Coordinator.RunTTL()).WithPrefix(cfg.Database.KeyPrefix)
		logger.Info("Runs persisted in database", zap.Duration("ttl", cfg.Coordinator.RunTTL()))
	} else {
		be.runs = coordinator.NewMemoryStore()
	}
	return be, nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildEmbedder(
	cfg config.EmbeddingConfig,
	instruction string,
	kv db.KVStore,
	keyPrefix string,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	baseCfg := &openaiTransport.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		Provider: cfg.Provider,
		Logger:   logger,
	}
	if cfg.SendDimensions {
		baseCfg.Dimensions = cfg.Dimensions
	}
	var embedder domain.Embedder = openaiTransport.NewEmbedder(baseCfg)

	// Cached
	if cfg.Cache && kv != nil {
		ttl := time.Duration(cfg.CacheTTLHours) * time.Hour
		embedder = embcache.New(embedder, kv, embcache.Config{
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			TTL:        ttl,
			Prefix:     keyPrefix + "emb_cache:",
			CacheTotal: metrics.EmbeddingCacheTotal,
			Logger:     logger,
		})
	}

	// Instrumented (metrics + usage)
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, logger)

	// Instruction prefix (outermost: cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

// embeddingHealthChecker wraps domain.Embedder to implement health.ProviderChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
