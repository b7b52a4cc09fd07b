package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/sundayezeilo/tips/internal/config"
	"github.com/sundayezeilo/tips/internal/metrics"
	"github.com/sundayezeilo/tips/internal/server"
	"github.com/sundayezeilo/tips/internal/tips"
)

// App holds the application dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *tips.Store
	Server  *server.Server
	Handler *tips.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := SetupLogger(cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.Observability.ServiceVersion,
	)

	var opts []tips.Option
	if cfg.Observability.MetricsEnabled {
		opts = append(opts, tips.WithObserver(metrics.StoreObserver{}))
	}
	store, err := OpenStore(ctx, &cfg.Database, logger, opts...)
	if err != nil {
		return nil, err
	}

	svc := tips.NewService(store)
	handler := tips.NewHandler(tips.HandlerConfig{
		Service: svc,
		Logger:  logger,
	})

	srv := server.New(cfg, logger, handler, store)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"metrics", cfg.Observability.MetricsEnabled,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Server:  srv,
		Handler: handler,
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown releases application resources. The store holds no open
// connections between operations, so there is nothing to close there.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")
	return nil
}

// OpenStore builds a tip store from cfg, verifies the database is reachable
// and creates the schema when DB_AUTO_MIGRATE is set.
func OpenStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger, opts ...tips.Option) (*tips.Store, error) {
	opts = append([]tips.Option{
		tips.WithSSLMode(cfg.SSLMode),
		tips.WithConnectTimeout(cfg.ConnectTimeout),
	}, opts...)

	store := tips.NewStore(tips.PgxConnector{}, opts...)
	store.Configure(cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password)

	logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
	)

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("database schema migrated")
	}

	logger.Info("database connection verified")
	return store, nil
}

// LoadEnv loads a .env file in development and test environments.
func LoadEnv() {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" || env == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
}

// SetupLogger creates a structured logger based on the log level.
func SetupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}
