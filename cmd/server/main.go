package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	appservice "github.com/turtacn/certguard/internal/application/service"
	"github.com/turtacn/certguard/internal/bootstrap"
	"github.com/turtacn/certguard/internal/config"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/infrastructure/audit"
	"github.com/turtacn/certguard/internal/infrastructure/cdn"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/internal/infrastructure/monitoring"
	"github.com/turtacn/certguard/internal/infrastructure/notify"
	"github.com/turtacn/certguard/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/certguard/internal/infrastructure/persistence/redis"
	"github.com/turtacn/certguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/certguard/internal/interfaces/http/handlers"
	"github.com/turtacn/certguard/internal/interfaces/http/router"
	"github.com/turtacn/certguard/pkg/logger"
)

func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:          "certguard",
		Short:        "DHIS2 certification API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to the configuration file")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	zapLogger := monitoring.NewZapLogger(cfg.Log)
	defer zapLogger.Sync() //nolint:errcheck
	appLogger := zapLogger.WithComponent("main")

	if configFile != "" {
		// Only the log level is hot-reloaded. Everything else needs a restart.
		if err := config.WatchConfig(configFile, appLogger, func(next *config.Config) {
			zapLogger.SetLevel(next.Log.Level)
		}); err != nil {
			appLogger.Warn(ctx, "Config watcher disabled", logger.Error(err))
		}
	}

	tracing, err := monitoring.NewTracingManager(cfg.Tracing, cfg.Server.Environment, zapLogger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	db, err := postgres.NewDBConnection(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisConn := redis.NewRedisConnection(cfg.Redis, zapLogger)
	if err := redisConn.Connect(ctx); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisConn.Close()
	kv := redis.NewKVStore(redisConn.Client())

	auditSvc, closeAudit, err := audit.NewAuditService(cfg.Audit, cfg.Kafka, db.DB(ctx), zapLogger)
	if err != nil {
		return fmt.Errorf("init audit: %w", err)
	}
	defer func() {
		if err := closeAudit(); err != nil {
			appLogger.Warn(context.Background(), "Failed to close audit sink", logger.Error(err))
		}
	}()

	signing, err := bootstrap.OpenSigning(ctx, cfg, auditSvc, metrics, zapLogger)
	if err != nil {
		return fmt.Errorf("open signing backend: %w", err)
	}
	defer signing.Close()

	purger, err := cdn.NewCachePurger(ctx, cfg.CDN, zapLogger)
	if err != nil {
		return fmt.Errorf("init cdn purger: %w", err)
	}
	signing.Keys.WithCachePurger(purger)

	// Repositories
	users := postgres.NewUserRepository(db, zapLogger)
	certs := postgres.NewCertificateRepository(db, zapLogger)

	// Authentication
	tokens, err := crypto.NewJWTManager(crypto.JWTManagerConfig{
		AccessSecret:    cfg.JWT.AccessSecret,
		RefreshSecret:   cfg.JWT.RefreshSecret,
		AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
		Issuer:          cfg.JWT.Issuer,
		Audience:        cfg.JWT.Audience,
	})
	if err != nil {
		return fmt.Errorf("init jwt: %w", err)
	}
	otpCipher, err := crypto.NewXChaChaCipher(cfg.OTP.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init otp cipher: %w", err)
	}
	blacklist := domainService.NewTokenBlacklistService(kv, domainService.BlacklistConfig{
		FailureThreshold: cfg.Blacklist.FailureThreshold,
		RecoveryTimeout:  cfg.Blacklist.RecoveryTimeout,
		FallbackMode:     cfg.Blacklist.FallbackMode,
		LocalMaxSize:     cfg.Blacklist.LocalMaxSize,
		MaxEntryTTL:      cfg.JWT.AccessTokenTTL,
		TrackingTTL:      cfg.JWT.AccessTokenTTL,
	}, zapLogger, metrics)
	go blacklist.RunSweeper(ctx, cfg.Blacklist.SweepInterval)

	authService, err := appservice.NewAuthAppService(appservice.AuthDependencies{
		Users:     users,
		Hasher:    crypto.NewBcryptHasher(crypto.DefaultBcryptCost),
		Tokens:    tokens,
		Blacklist: blacklist,
		Refreshes: domainService.NewRefreshTokenStore(kv, cfg.JWT.RefreshTokenTTL, zapLogger),
		Sessions: domainService.NewSessionTimeoutService(kv, domainService.SessionConfig{
			IdleTimeout:     cfg.Session.IdleTimeout,
			AbsoluteTimeout: cfg.Session.AbsoluteTimeout,
			TTL:             cfg.JWT.RefreshTokenTTL,
		}, zapLogger),
		Lockout: domainService.NewPasswordLockoutService(kv, domainService.LockoutConfig{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Window:      cfg.Lockout.Window,
			Duration:    cfg.Lockout.Duration,
		}, zapLogger),
		OTP: domainService.NewOTPService(kv, otpCipher, domainService.OTPConfig{
			Issuer:          cfg.OTP.Issuer,
			MaxFailures:     cfg.OTP.MaxFailures,
			LockoutDuration: cfg.OTP.LockoutDuration,
		}, zapLogger),
		Audit:   auditSvc,
		Mailer:  notify.NewLogMailer(zapLogger),
		Metrics: metrics,
		Logger:  zapLogger,
	})
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	// Certificates
	canon := crypto.NewJCSCanonicalizer()
	issuer := domainService.IssuerProfile{
		DID:      cfg.Issuer.DID,
		Name:     cfg.Issuer.Name,
		BaseURL:  cfg.Issuer.BaseURL,
		Validity: cfg.Issuer.CredentialValidity,
	}
	statusLists := domainService.NewStatusListService(certs, signing.Signer, canon, issuer, nil, zapLogger)
	certService := appservice.NewCertificateAppService(appservice.CertificateDependencies{
		Certificates: certs,
		Credentials:  domainService.NewCredentialService(signing.Signer, canon, issuer, statusLists, zapLogger),
		StatusLists:  statusLists,
		Cache:        domainService.NewStatusListCacheService(kv, cfg.StatusList.CacheTTL, zapLogger, metrics),
		Purger:       purger,
		Audit:        auditSvc,
		Metrics:      metrics,
		Logger:       zapLogger,
	})

	limiter := ratelimit.NewRedisRateLimiter(kv, ratelimit.RateLimiterConfig{
		Limit:               int64(cfg.RateLimit.Requests),
		Window:              cfg.RateLimit.Window,
		EnableLocalFallback: true,
	}, metrics, zapLogger)

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": db,
		"redis":    redisConn,
		"signing":  handlers.PingFunc(signing.Ping),
	}, signing.Keys, zapLogger)

	deps := router.Dependencies{
		Config:       cfg,
		Logger:       zapLogger,
		Tokens:       authService,
		Limiter:      limiter,
		Tracer:       tracing,
		Metrics:      metrics,
		Gatherer:     prometheus.DefaultGatherer,
		Idempotency:  kv,
		Health:       health,
		Auth:         handlers.NewAuthHandler(authService, zapLogger),
		Certificates: handlers.NewCertificateHandler(certService, zapLogger),
		Keys:         handlers.NewKeyHandler(signing.Keys, zapLogger),
	}

	appLogger.Info(ctx, "Starting certguard",
		logger.String("environment", cfg.Server.Environment),
		logger.Int("port", cfg.Server.Port),
		logger.String("signing_backend", signing.Signer.Backend()))

	if err := router.NewRouter(deps).Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLogger.Info(context.Background(), "certguard stopped")
	return nil
}

//Personal.AI order the ending
