package setup

import (
	"context"
	"log"

	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/classifier"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/database"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/redis"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup/config"
	"github.com/Tab-To-LightSpeed24/CommunityClara/internal/setup/logging"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// App bundles all common dependencies and services.
type App struct {
	Config       *config.Config         // Application configuration
	Logger       *zap.Logger            // Main application logger
	DBLogger     *zap.Logger            // Database logger
	DB           database.Client        // Database connection
	RedisManager *redis.Manager         // Redis connection manager
	StatusClient rueidis.Client         // Redis client for worker status reporting
	Classifier   *classifier.Classifier // Content classification pipeline
}

// InitializeApp loads configuration, initializes loggers, and connects
// to every shared backend. Returns the App with all services ready.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, dbLogger, err := logging.SetupLogging(logDir, cfg.Common.Debug.LogLevel, cfg.Common.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("configDir", configDir))

	db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, dbLogger, true)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		logger.Error("Failed to create Redis status client", zap.Error(err))
		return nil, err
	}

	cls := classifier.New(&cfg.Common, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger,
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
		Classifier:   cls,
	}, nil
}

// Cleanup ensures all resources are properly released.
func (a *App) Cleanup() {
	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := a.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	if err := a.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	a.RedisManager.Close()
}
