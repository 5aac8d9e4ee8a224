package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-core-api/internal/config"
	"github.com/noah-isme/sma-core-api/internal/database"
	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/observability"
	"github.com/noah-isme/sma-core-api/internal/repository"
	"github.com/noah-isme/sma-core-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sma-syncd").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	if err := db.AutoMigrate(&models.DirectoryCacheEntry{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	directoryClient, err := directory.NewClient(directory.ClientConfig{
		BaseURL:   cfg.DirectoryBaseURL,
		APIKey:    cfg.DirectoryAPIKey,
		APISecret: cfg.DirectoryAPISecret,
		Timeout:   cfg.DirectoryTimeout,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build directory client")
	}

	sync, err := service.NewSyncService(
		directory.NewAdapter(directoryClient, logger),
		repository.NewDirectoryCacheRepository(db),
		redisClient,
		cfg.SyncInterval,
		cfg.SyncLeaseTTL,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build sync service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Dur("interval", cfg.SyncInterval).Msg("sync daemon started")
	if err := sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sync daemon stopped")
	}
	logger.Info().Msg("sync daemon stopped")
}
