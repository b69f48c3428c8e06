// Package app assembles the pipeline and its backing services from
// configuration. Both binaries share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"medlens/internal/api"
	"medlens/internal/common/config"
	"medlens/internal/common/database"
	"medlens/internal/common/logger"
	"medlens/internal/common/observability"
	"medlens/internal/interactions"
	"medlens/internal/lastresult"
	"medlens/internal/llm"
	"medlens/internal/ocr"
	"medlens/internal/pipeline"
)

// Components is everything a binary needs to serve analyses.
type Components struct {
	Pipeline *pipeline.Pipeline
	Store    lastresult.Store
	Checks   map[string]api.ReadinessCheck

	closers []func() error
}

// Build connects to the configured backends, retrying each with backoff,
// and wires the pipeline.
func Build(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, obs *observability.Observability) (*Components, error) {
	log := logger.NewZapAdapter(zapLog)
	c := &Components{Checks: make(map[string]api.ReadinessCheck)}

	llmClient := llm.NewFromConfig(cfg.LLM, log)
	if !llmClient.Configured() {
		zapLog.Warn("No LLM provider has an API key; analyses will fail until one is set")
	}

	source, err := c.labelSource(ctx, cfg, zapLog)
	if err != nil {
		c.Close()
		return nil, err
	}

	store, err := c.lastResultStore(ctx, cfg, zapLog)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store = store

	checker := interactions.NewChecker(source, llmClient, cfg.Interactions, log)
	engine := ocr.NewTesseract(cfg.OCR.BinaryPath, cfg.OCR.Language, log)
	c.Pipeline = pipeline.New(engine, llmClient, checker, log, obs)

	zapLog.Info("Pipeline ready",
		zap.Strings("llmOrder", cfg.LLM.Order),
		zap.String("interactionSource", source.Name()),
		zap.String("lastResultBackend", cfg.LastResult.Backend),
	)
	return c, nil
}

func (c *Components) labelSource(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (interactions.LabelSource, error) {
	if cfg.Interactions.Source != config.SourceElasticsearch {
		return interactions.NewOpenFDA(cfg.Interactions.OpenFDA), nil
	}

	var es *elasticsearch.Client
	err := RetryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return database.PingElasticsearch(ctx, es)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		return nil, err
	}
	zapLog.Info("Elasticsearch connected successfully")

	c.Checks["elasticsearch"] = func(ctx context.Context) error {
		return database.PingElasticsearch(ctx, es)
	}
	return interactions.NewLabelIndex(es, cfg.Interactions.Elasticsearch.Index), nil
}

func (c *Components) lastResultStore(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (lastresult.Store, error) {
	switch cfg.LastResult.Backend {
	case config.BackendRedis:
		var rdb *redis.Client
		err := RetryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			return nil, err
		}
		zapLog.Info("Redis connected successfully")

		c.closers = append(c.closers, rdb.Close)
		c.Checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
		return lastresult.NewRedisStore(rdb), nil

	case config.BackendPostgres:
		var db *sql.DB
		err := RetryWithBackoff(func() error {
			var err error
			db, err = database.NewPostgres(ctx, cfg.Database.Postgres)
			return err
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		zapLog.Info("PostgreSQL connected successfully")

		c.closers = append(c.closers, db.Close)
		c.Checks["postgres"] = db.PingContext
		store := lastresult.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return lastresult.NewMemoryStore(), nil
	}
}

// Close releases backend connections.
func (c *Components) Close() {
	for _, closeFn := range c.closers {
		_ = closeFn()
	}
	c.closers = nil
}

// RetryWithBackoff attempts to execute a function with exponential backoff.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
