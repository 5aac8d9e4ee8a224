package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-core-api/internal/config"
	"github.com/noah-isme/sma-core-api/internal/database"
	"github.com/noah-isme/sma-core-api/internal/directory"
	"github.com/noah-isme/sma-core-api/internal/handler"
	"github.com/noah-isme/sma-core-api/internal/middleware"
	"github.com/noah-isme/sma-core-api/internal/models"
	"github.com/noah-isme/sma-core-api/internal/observability"
	"github.com/noah-isme/sma-core-api/internal/repository"
	"github.com/noah-isme/sma-core-api/internal/router"
	"github.com/noah-isme/sma-core-api/internal/service"
	"github.com/noah-isme/sma-core-api/internal/token"
	"github.com/noah-isme/sma-core-api/internal/utils"
	"github.com/noah-isme/sma-core-api/pkg/ai"
	"github.com/noah-isme/sma-core-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sma-core-api").Logger()

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
	if err := db.AutoMigrate(
		&models.User{},
		&models.StudentInfo{},
		&models.TeacherInfo{},
		&models.TeacherStudent{},
		&models.ParentInfo{},
		&models.ParentChild{},
		&models.AdminInfo{},
		&models.AIInteraction{},
		&models.ParentalApproval{},
		&models.TutorPreferences{},
		&models.DirectoryCacheEntry{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token manager")
	}

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
	adapter := directory.NewAdapter(directoryClient, logger)

	tutor, err := buildTutor(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build tutor provider")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, audit events disabled")
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	var photos service.FileStorage
	if cfg.CloudinaryCloudName != "" {
		photos, err = cloudinary.New(cloudinary.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build cloudinary service")
		}
	}

	validate := validator.New()

	users := repository.NewUserRepository(db)
	interactions := repository.NewInteractionRepository(db)
	approvals := repository.NewApprovalRepository(db)
	cache := repository.NewDirectoryCacheRepository(db)

	authService := service.NewAuthService(users, tokens, adapter, cache, photos, validate, logger)
	tutorService := service.NewTutorService(tutor, interactions, approvals, users,
		redisClient, natsConn, validate, cfg.AIDailyQuota, logger)
	studentService := service.NewStudentService(adapter, cache, users, validate, logger)

	checker, ok := authService.(middleware.RelationshipChecker)
	if !ok {
		logger.Fatal().Msg("auth service does not implement relationship checks")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: errorHandler,
	})
	middleware.Register(app, middleware.Config{Logger: &logger})

	router.Register(app, router.Dependencies{
		Tokens:   tokens,
		Checker:  checker,
		Auth:     handler.NewAuthHandler(authService),
		Tutor:    handler.NewTutorHandler(tutorService),
		Students: handler.NewStudentHandler(studentService),
		Health:   handler.NewHealthHandler(db, redisClient, cfg.AppEnv),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("address", cfg.HTTPAddress()).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if err := app.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func buildTutor(cfg config.Config, logger zerolog.Logger) (ai.Tutor, error) {
	switch cfg.AIProvider {
	case "openai", "":
		return ai.NewOpenAITutor(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Logger: logger,
		})
	case "anthropic":
		return ai.NewAnthropicTutor(ai.AnthropicConfig{APIKey: cfg.AnthropicAPIKey})
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AIProvider)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return utils.SendError(c, code, err.Error())
}
