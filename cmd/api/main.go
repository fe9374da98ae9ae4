// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/admin"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/auth"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/blob"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/bonuscode"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/config"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/guard"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/health"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/middleware"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/migrations"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/notification"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/profile"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/server"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateAction := flag.String("migrate", "", "apply migrations (up|down) and exit")
	flag.Parse()

	if err := run(*configPath, *migrateAction); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath, migrateAction string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	switch migrateAction {
	case "":
	case "up":
		defer db.Close() //nolint:errcheck // process exits next
		return migrations.Up(db.DB.DB, logger)
	case "down":
		defer db.Close() //nolint:errcheck // process exits next
		return migrations.Down(db.DB.DB)
	default:
		return fmt.Errorf("unknown migrate action %q", migrateAction)
	}

	if cfg.Database.MigrateOnStart {
		if err := migrations.Up(db.DB.DB, logger); err != nil {
			return err
		}
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	if err := ensureDevKeys(cfg); err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.KeyID(),
	)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo)

	manager := entitlement.NewManager(
		userRepo,
		entitlement.NewPostgresTxRunner(db.DB),
		logger,
	)

	directory := identity.NewDirectory(identity.NewRepository(db.DB), logger)
	blobStore := blob.NewPostgresStore(db.DB, cfg.Blob.PublicBaseURL)

	registry := session.NewRegistry(
		session.NewRedisStore(redis.Client, cfg.Session.KeyPrefix),
		func() session.Provider { return identity.NewClient(directory) },
		session.Options{
			Resolver: manager,
			Profiles: userSvc,
			Blobs:    blobStore,
			Logger:   logger,
		},
		cfg.Session,
	)

	var exchanger auth.Exchanger
	if cfg.OIDC.Enabled {
		oidc, oidcErr := identity.NewOIDCExchanger(ctx, cfg.OIDC, nil)
		if oidcErr != nil {
			return oidcErr
		}
		exchanger = oidc
		logger.Info("federated login enabled", "discovery_url", cfg.OIDC.DiscoveryURL)
	}

	authSvc := auth.NewService(
		registry,
		jwtManager,
		auth.NewFlowRepository(redis.Client),
		exchanger,
		logger,
	)

	notificationSvc := notification.NewService(
		notification.NewRepository(db.DB),
		userSvc,
		notification.NewRedisBroker(redis.Client, cfg.Notifications.Channel, logger),
		cfg.Notifications.FeedLimit,
		logger,
	)

	bonusSvc := bonuscode.NewService(bonuscode.NewRepository(db.DB), logger)

	authHandler := auth.NewHandler(authSvc)
	userHandler := user.NewHandler(userSvc, manager)
	bonusHandler := bonuscode.NewHandler(bonusSvc)
	notificationHandler := notification.NewHandler(notificationSvc, userSvc)
	profileHandler := profile.NewHandler(userSvc, manager, cfg.Blob.MaxUploadBytes)
	blobHandler := blob.NewHandler(blobStore)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Users:      userSvc,
		Sessions:   registry,
		Health:     healthHandler,
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerWindow(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
				cfg.RateLimit.Window,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.JWKSHandler())

	authenticator := session.Authenticator(registry, jwtManager)
	signedIn := guard.Require(role.None)
	adminOnly := guard.Require(role.Admin)

	redeemLimit := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.RedeemRequests,
			cfg.RateLimit.RedeemBurst,
		),
		KeyFunc: middleware.KeyByUserAndEndpoint,
	}).Handler

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		profileHandler.RegisterRoutes(r, redeemLimit, authenticator, signedIn)
		notificationHandler.RegisterRoutes(r, authenticator, signedIn)
		blobHandler.RegisterRoutes(r)

		adminHandler.RegisterRoutes(r, authenticator, adminOnly,
			userHandler,
			bonusHandler,
			notificationHandler,
		)
	})

	go registry.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if cfg.FilePath != "" {
		rl, err := rotatelogs.New(
			cfg.FilePath+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.FilePath),
			rotatelogs.WithMaxAge(cfg.MaxAge),
			rotatelogs.WithRotationTime(cfg.RotationTime),
		)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, rl)
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), nil
}

// ensureDevKeys creates a signing key pair on first start in development so
// a fresh checkout runs without manual setup.
func ensureDevKeys(cfg *config.Config) error {
	if !cfg.IsDevelopment() {
		return nil
	}

	if _, err := os.Stat(cfg.JWT.PrivateKeyPath); !errors.Is(err, os.ErrNotExist) {
		return nil
	}

	slog.Warn("generating development signing keys",
		"private_key_path", cfg.JWT.PrivateKeyPath,
	)
	return auth.GenerateKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath)
}
