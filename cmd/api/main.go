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
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if cfg.AutoMigrate {
		if err := infra.Migrate(cfg); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	var notifier queue.Notifier
	switch cfg.QueueDriver {
	case infra.QueueDriverRedis:
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer func() {
			_ = rdb.Close()
		}()
		notifier = queue.NewRedisQueue(rdb, cfg.RedisQueue)
	default:
		notifier = queue.NewPGNotifier(dbpool, cfg.QueueChannel)
	}

	app := &handlers.App{
		Batches:  repo.NewBatchRepository(dbpool),
		Jobs:     repo.NewJobRepository(dbpool),
		Profiles: repo.NewProfileRepository(dbpool),
		Content:  repo.NewContentRepository(dbpool),
		Notifier: notifier,
		DB:       dbpool,
		Logger:   logger,
	}

	router := httpapi.NewRouter(app, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
