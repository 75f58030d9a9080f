package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridianpay/gatewaycore/internal/adapters/circuitbreaker"
	"github.com/meridianpay/gatewaycore/internal/adapters/postgres"
	"github.com/meridianpay/gatewaycore/internal/adapters/processor"
	"github.com/meridianpay/gatewaycore/internal/auth"
	"github.com/meridianpay/gatewaycore/internal/config"
	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/meridianpay/gatewaycore/internal/httpapi"
	"github.com/meridianpay/gatewaycore/internal/services/billing"
	"github.com/meridianpay/gatewaycore/internal/services/payment"
	"github.com/meridianpay/gatewaycore/internal/services/ratelimit"
	"github.com/meridianpay/gatewaycore/internal/services/subscription"
	"github.com/meridianpay/gatewaycore/internal/services/webhook"
	pkghttp "github.com/meridianpay/gatewaycore/pkg/http"
	"github.com/meridianpay/gatewaycore/pkg/middleware"
	"github.com/meridianpay/gatewaycore/pkg/observability"
	"github.com/meridianpay/gatewaycore/pkg/resilience"
	"github.com/meridianpay/gatewaycore/pkg/resourcemgmt"
	"github.com/meridianpay/gatewaycore/pkg/shutdown"
)

func main() {
	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting gatewaycore", zap.String("version", "0.1.0"))

	ctx := context.Background()

	secretManager := initSecretManager(ctx, logger)
	resolveSecrets(ctx, secretManager, logger)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", zap.Error(err))
		logger.Sync()
		os.Exit(2)
	}
	defer pool.Close()
	logger.Info("database connection established", zap.String("database", cfg.Database.Database))

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	db := postgres.NewDB(pool)

	// Repositories
	customers := postgres.NewCustomerRepository(db)
	methods := postgres.NewPaymentMethodRepository(db)
	txns := postgres.NewTransactionRepository(db)
	plans := postgres.NewPlanRepository(db)
	subs := postgres.NewSubscriptionRepository(db)
	invoices := postgres.NewInvoiceRepository(db)
	credits := postgres.NewCreditNoteRepository(db)
	webhooks := postgres.NewWebhookRepository(db)
	audit := postgres.NewAuditRepository(db)
	idempotency := postgres.NewIdempotencyStore(db)
	rateLimiterStore := postgres.NewRateLimiterStore(db)

	httpClient := pkghttp.NewHTTPClient(pkghttp.ProcessorClientConfig(), time.Duration(cfg.Gateway.Timeout)*time.Second)
	northAdapter := processor.NewNorthAdapter(
		processor.AuthConfig{EPIId: cfg.Gateway.EPIId, EPIKey: cfg.Gateway.EPIKey},
		cfg.Gateway.BaseURL,
		httpClient,
		logger,
	)

	orchestrator := payment.NewOrchestrator(db, northAdapter, idempotency, customers, methods, txns, audit, logger)
	subEngine := subscription.NewEngine(db, idempotency, plans, subs, invoices, credits, audit, logger)
	scheduler := billing.NewScheduler(db, plans, subs, invoices, credits, txns, orchestrator, northAdapter, audit, logger)

	breakerRegistry := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	goroutines := resourcemgmt.NewGoroutineTracker(logger, resourcemgmt.DefaultConfig())
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	go goroutines.StartMonitoring(monitorCtx)

	webhookClient := pkghttp.NewHTTPClient(pkghttp.WebhookClientConfig(), time.Duration(cfg.Webhook.DeliveryTimeout)*time.Second)
	outboundWebhooks := webhook.NewOutbound(db, webhooks, webhookClient, breakerRegistry, goroutines, cfg.Webhook.OutboundSigningSecret, cfg.Webhook.OutboundEndpointURL, logger)
	inboundWebhooks := webhook.NewInbound(db, webhooks, txns, cfg.Webhook.InboundSigningSecret, logger)
	inboundWebhooks.SetEventEmitter(outboundWebhooks)
	orchestrator.SetEventEmitter(outboundWebhooks)

	limiter := ratelimit.New(rateLimiterStore, logger)

	jwtManager := initJWTManager(cfg, logger)
	apiKeyGenerator := auth.NewAPIKeyGenerator(sqlDB, cfg.Auth.APIKeySaltPrefix)
	authMiddleware := httpapi.NewAuthMiddleware(jwtManager, apiKeyGenerator, limiter, cfg.Auth.RateLimitPerHour, cfg.Auth.RateLimitBurst, logger)

	ipLimiter := middleware.NewRateLimiter(float64(cfg.Auth.RateLimitPerHour)/3600.0, cfg.Auth.RateLimitBurst)

	server := httpapi.NewServer(httpapi.Deps{
		Payments:      httpapi.NewPaymentHandlers(orchestrator, logger),
		Subscriptions: httpapi.NewSubscriptionHandlers(subEngine, logger),
		Plans:         httpapi.NewPlanHandlers(plans, db, logger),
		Webhooks:      httpapi.NewWebhookHandlers(inboundWebhooks, logger),
		Auth:          authMiddleware,
		IPLimiter:     ipLimiter,
		Timeouts:      resilience.DefaultTimeoutConfig(),
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthChecker := observability.NewHealthChecker(pool)
	metricsServer := observability.StartMetricsServer(fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker)

	shutdownMgr := shutdown.NewManager(logger, 30*time.Second)

	billingSweep := shutdown.NewPeriodicWorker("billing-sweep", time.Hour, logger)
	billingSweep.Start(func(ctx context.Context) {
		result := scheduler.ProcessDueBilling(ctx)
		logger.Info("billing sweep complete", zap.Int("processed", result.Processed), zap.Int("succeeded", result.Succeeded), zap.Int("failed", result.Failed))
	})
	shutdownMgr.Register("billing-sweep", billingSweep.Shutdown)

	dunningSweep := newDailyWorker("dunning-sweep", 9, 0, logger, func(ctx context.Context) {
		result := scheduler.RetryFailedPayments(ctx)
		logger.Info("dunning sweep complete", zap.Int("processed", result.Processed), zap.Int("succeeded", result.Succeeded), zap.Int("failed", result.Failed))
	})
	shutdownMgr.Register("dunning-sweep", dunningSweep.Shutdown)

	lifecycleSweep := newDailyWorker("lifecycle-sweep", 6, 0, logger, func(ctx context.Context) {
		result := scheduler.RunLifecycleSweep(ctx)
		logger.Info("lifecycle sweep complete", zap.Int("processed", result.Processed), zap.Int("succeeded", result.Succeeded), zap.Int("failed", result.Failed))
		reconResult := scheduler.RunReconciliationSweep(ctx)
		logger.Info("reconciliation sweep complete", zap.Int("processed", reconResult.Processed), zap.Int("succeeded", reconResult.Succeeded), zap.Int("failed", reconResult.Failed))
	})
	shutdownMgr.Register("lifecycle-sweep", lifecycleSweep.Shutdown)

	webhookOutboundSweep := shutdown.NewPeriodicWorker("webhook-outbound-sweep", 5*time.Minute, logger)
	webhookOutboundSweep.Start(func(ctx context.Context) {
		outboundWebhooks.RunSweep(ctx)
	})
	shutdownMgr.Register("webhook-outbound-sweep", webhookOutboundSweep.Shutdown)

	webhookCleanupSweep := newDailyWorker("webhook-cleanup-sweep", 2, 0, logger, func(ctx context.Context) {
		outboundWebhooks.RunCleanupSweep(ctx)
	})
	shutdownMgr.Register("webhook-cleanup-sweep", webhookCleanupSweep.Shutdown)

	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})
	shutdownMgr.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(metricsServer)
	})
	shutdownMgr.RegisterNoErr("ip-limiter", ipLimiter.Shutdown)
	shutdownMgr.RegisterNoErr("goroutine-monitor", stopMonitor)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")
	shutdownMgr.Shutdown()
	logger.Info("shutdown complete")
}

func initLogger() *zap.Logger {
	if getEnv("ENVIRONMENT", "development") == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

// resolveSecrets backfills secret-bearing environment variables from the
// configured secret store when they are not already set in the process
// environment, so deployments can reference store paths instead of shipping
// raw values. A secret missing from the store is not fatal here; config
// validation decides which values are actually required.
func resolveSecrets(ctx context.Context, sm ports.SecretManagerAdapter, logger *zap.Logger) {
	paths := map[string]string{
		"DB_PASSWORD":             getEnv("SECRET_PATH_DB_PASSWORD", "gatewaycore/db_password"),
		"NORTH_EPI_KEY":           getEnv("SECRET_PATH_NORTH_EPI_KEY", "gatewaycore/north_epi_key"),
		"WEBHOOK_INBOUND_SECRET":  getEnv("SECRET_PATH_WEBHOOK_INBOUND", "gatewaycore/webhook_inbound_secret"),
		"WEBHOOK_OUTBOUND_SECRET": getEnv("SECRET_PATH_WEBHOOK_OUTBOUND", "gatewaycore/webhook_outbound_secret"),
		"JWT_PRIVATE_KEY":         getEnv("SECRET_PATH_JWT_PRIVATE_KEY", "gatewaycore/jwt_private_key"),
	}
	for envVar, path := range paths {
		if os.Getenv(envVar) != "" {
			continue
		}
		secret, err := sm.GetSecret(ctx, path)
		if err != nil {
			logger.Debug("secret not resolved from store",
				zap.String("env", envVar), zap.String("path", path), zap.Error(err))
			continue
		}
		os.Setenv(envVar, secret.Value)
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(dialCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// initJWTManager builds the JWTManager from the configured RSA private key.
// In development, an ephemeral key pair is generated when none is set so the
// server can still start; production deployments must set JWT_PRIVATE_KEY.
func initJWTManager(cfg *config.Config, logger *zap.Logger) *auth.JWTManager {
	keyPEM := []byte(cfg.Auth.JWTPrivateKeyPEM)
	if len(keyPEM) == 0 {
		if getEnv("ENVIRONMENT", "development") == "production" {
			logger.Fatal("JWT_PRIVATE_KEY is required in production")
		}
		logger.Warn("JWT_PRIVATE_KEY not set, generating an ephemeral key pair for this process only")
		priv, _, err := auth.GenerateRSAKeyPair(2048)
		if err != nil {
			logger.Fatal("failed to generate ephemeral JWT key pair", zap.Error(err))
		}
		keyPEM = auth.PrivateKeyToPEM(priv)
	}

	manager, err := auth.NewJWTManager(keyPEM, cfg.Auth.JWTIssuer, cfg.Auth.JWTExpiration, cfg.Auth.JWTRefreshExpiration)
	if err != nil {
		logger.Fatal("failed to initialize JWT manager", zap.Error(err))
	}
	return manager
}

// dailyWorker runs work once every 24 hours, anchored to a fixed hour:minute
// of day rather than a fixed-interval ticker.
type dailyWorker struct {
	*shutdown.BackgroundWorker
}

func newDailyWorker(name string, hour, minute int, logger *zap.Logger, work func(ctx context.Context)) *dailyWorker {
	w := &dailyWorker{BackgroundWorker: shutdown.NewBackgroundWorker(name, logger)}
	w.Start(func(ctx context.Context) {
		for {
			wait := durationUntilNext(hour, minute)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				work(ctx)
			}
		}
	})
	return w
}

func durationUntilNext(hour, minute int) time.Duration {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultMinutes int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMinutes)) * time.Minute
}
