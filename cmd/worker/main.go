package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/providers/genai"
	"server/internal/queue"
	"server/internal/retry"
	"server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := infra.Migrate(cfg); err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to apply migrations")
		}
		logger.Info().Msg("worker: migrations applied")
	}

	var sub queue.Subscriber
	switch cfg.QueueDriver {
	case infra.QueueDriverRedis:
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: redis connection failed")
		}
		sub = queue.NewRedisQueue(rdb, cfg.RedisQueue)
	default:
		pgSub, err := queue.NewPGSubscriber(cfg.DatabaseURL, cfg.QueueChannel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: listen channel failed")
		}
		sub = pgSub
	}
	defer func() {
		_ = sub.Close()
	}()

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:          cfg.GeminiAPIKey,
		BaseURL:         cfg.GeminiBaseURL,
		Model:           cfg.GeminiModel,
		Temperature:     &cfg.GenTemperature,
		MaxOutputTokens: cfg.GenMaxTokens,
		HTTPClient:      &http.Client{Timeout: cfg.GeminiTimeout},
		Logger:          &logger,
		// One retry on transient provider errors; anything beyond that
		// fails the batch.
		Retry: retry.Policy{MaxRetries: 1},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}

	handler := generation.NewHandler(
		repo.NewBatchRepository(pool),
		repo.NewProfileRepository(pool),
		repo.NewContentRepository(pool),
		geminiClient,
		logger,
		generation.HandlerOptions{ItemCount: cfg.GenItemCount},
	)

	w := worker.New(repo.NewJobRepository(pool), sub, logger, worker.Config{
		Concurrency:   cfg.WorkerConcurrency,
		SweepInterval: cfg.SweepInterval,
		SweepMinAge:   cfg.SweepMinAge,
	})
	w.Register(handler)

	logger.Info().
		Str("queue_driver", cfg.QueueDriver).
		Int("concurrency", cfg.WorkerConcurrency).
		Msg("worker: started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
