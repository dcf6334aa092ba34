package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onboardworks/chat-onboarding-backend/internal/app"
	"github.com/onboardworks/chat-onboarding-backend/internal/config"
	"github.com/onboardworks/chat-onboarding-backend/internal/domain"
	"github.com/onboardworks/chat-onboarding-backend/internal/health"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/handler"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/middleware"
	"github.com/onboardworks/chat-onboarding-backend/internal/http/router"
	"github.com/onboardworks/chat-onboarding-backend/internal/mailer"
	"github.com/onboardworks/chat-onboarding-backend/internal/observability"
	"github.com/onboardworks/chat-onboarding-backend/internal/repository"
	"github.com/onboardworks/chat-onboarding-backend/internal/security"
	"github.com/onboardworks/chat-onboarding-backend/internal/service"
	"github.com/onboardworks/chat-onboarding-backend/internal/storage"
	"github.com/onboardworks/chat-onboarding-backend/internal/upload"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "onboarding-server",
		Short: "Session and verification backend for the chat onboarding flow",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.AddCommand(newServeCommand(&configPath))
	cmd.AddCommand(newCleanupCommand(&configPath))
	return cmd
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func newCleanupCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Reset verification state on sessions with stale codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cleanup(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	bootstrapLogger := observability.NewBootstrapLogger(slog.LevelInfo)

	cfg, err := config.Load(ctx, configPath, bootstrapLogger)
	if err != nil {
		return err
	}

	runtime, err := observability.InitRuntime(ctx, cfg, bootstrapLogger)
	if err != nil {
		return err
	}
	logger := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&domain.Session{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	artifacts, boltDB, err := storage.OpenBoltArtifactStore(cfg.ArtifactStorePath)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	repo := repository.NewSessionRepository(db)
	tokens := security.NewSessionTokenManager(cfg.OTELServiceName, "chat", cfg.SessionTokenSecret, cfg.SessionTokenTTL)
	sender := mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)

	var guard service.SendGuard
	if redisClient != nil {
		guard = service.NewRedisSendGuard(redisClient, "verification_send", cfg.SendGuardLimitPerWindow, cfg.SendGuardWindow)
	}

	lifecycle := service.NewLifecycleService(repo, artifacts)
	verification := service.NewVerificationService(repo, sender, tokens, guard, cfg.CodeTTL, cfg.ResendCooldown)
	uploads := upload.NewService(repo, artifacts, cfg.MaxUploadBytes)

	readiness := health.NewProbeRunner(5*time.Second, 2*time.Second)
	readiness.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if redisClient != nil {
		readiness.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	var globalLimiter, verifyLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		shared := middleware.NewRedisFixedWindowLimiter(redisClient, "http_rate_limit")
		globalLimiter = middleware.NewDistributedRateLimiter(shared, cfg.APIRateLimitRPM, time.Minute, "api").Middleware()
		verifyLimiter = middleware.NewDistributedRateLimiter(shared, cfg.VerifyRateLimitRPM, time.Minute, "verify").Middleware()
	}

	h := router.NewRouter(router.Dependencies{
		SessionHandler:      handler.NewSessionHandler(lifecycle),
		VerificationHandler: handler.NewVerificationHandler(verification, cfg.CleanupMaxAge),
		UploadHandler:       handler.NewUploadHandler(uploads, cfg.MaxUploadBytes),
		CORSOrigins:         cfg.CORSOrigins,
		BodyLimitBytes:      cfg.BodyLimitBytes,
		APIRateLimitRPM:     cfg.APIRateLimitRPM,
		VerifyRateLimitRPM:  cfg.VerifyRateLimitRPM,
		MaintenanceAPIKey:   cfg.MaintenanceAPIKey,
		GlobalRateLimiter:   globalLimiter,
		VerifyRateLimiter:   verifyLimiter,
		Readiness:           readiness,
		EnableOTelHTTP:      cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	stopSweep := startCleanupSweep(logger, verification, cfg.CleanupMaxAge)
	stopBackground := func() {
		stopSweep()
		if err := boltDB.Close(); err != nil {
			logger.Error("artifact store close failed", "error", err)
		}
	}

	a := app.New(cfg, logger, server, runtime, db, redisClient, readiness, stopBackground)
	return a.Run(ctx)
}

// startCleanupSweep runs the stale-verification reset once an hour so a
// forgotten cron job does not let codes linger forever.
func startCleanupSweep(logger *slog.Logger, verification *service.VerificationService, maxAge time.Duration) func() {
	done := make(chan struct{})
	ticker := time.NewTicker(time.Hour)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				n, err := verification.CleanupExpiredVerifications(ctx, maxAge)
				cancel()
				if err != nil {
					logger.Error("cleanup sweep failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("cleanup sweep reset stale verifications", "rows", n)
				}
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func cleanup(ctx context.Context, configPath string) error {
	logger := observability.NewBootstrapLogger(slog.LevelInfo)

	cfg, err := config.Load(ctx, configPath, logger)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	repo := repository.NewSessionRepository(db)
	n, err := repo.CleanupExpiredVerifications(ctx, time.Now().UTC().Add(-cfg.CleanupMaxAge))
	if err != nil {
		return fmt.Errorf("cleanup sweep: %w", err)
	}
	logger.Info("cleanup finished", "reset_rows", n)
	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.DatabaseDriver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DatabaseDSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}
