package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"paygate.backend/internal/adapter"
	"paygate.backend/internal/adapter/omise"
	"paygate.backend/internal/adapter/paypal"
	"paygate.backend/internal/adapter/scb"
	"paygate.backend/internal/adapter/stripe"
	"paygate.backend/internal/audit"
	"paygate.backend/internal/config"
	"paygate.backend/internal/events"
	"paygate.backend/internal/idempotency"
	"paygate.backend/internal/infrastructure/repositories"
	"paygate.backend/internal/interfaces/http/handlers"
	"paygate.backend/internal/interfaces/http/middleware"
	"paygate.backend/internal/metrics"
	"paygate.backend/internal/orchestrator"
	"paygate.backend/internal/registry"
	"paygate.backend/internal/resilience"
	"paygate.backend/internal/routing"
	"paygate.backend/internal/scheduler"
	"paygate.backend/internal/vault"
	"paygate.backend/internal/webhook"
	"paygate.backend/pkg/jwt"
	"paygate.backend/pkg/logger"
	goredis "paygate.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = goredis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	zapLog := logger.GetLogger()
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Redis backs the idempotency store; its absence degrades to an
	// in-memory store rather than failing startup, since a single-instance
	// deployment has no cross-process idempotency to lose.
	var idemStore idempotency.Store
	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
		idemStore = idempotency.NewMemoryStore(zapLog)
	} else {
		idemStore = idempotency.NewRedisStore(goredis.GetClient())
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("connected to PostgreSQL via GORM")
	}

	credentialVault, err := vault.New(cfg.Security.CredentialEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)

	// Repositories
	paymentRepo := repositories.NewPaymentRepository(db)
	refundRepo := repositories.NewRefundRepository(db)
	providerRepo := repositories.NewProviderRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// C2 provider registry, C3 adapter factory, C1 vault
	providerRegistry := registry.NewWithVault(providerRepo, credentialVault)

	adapterFactory := adapter.NewFactoryWithVault(credentialVault)
	adapterFactory.Register("stripe", stripe.New)
	adapterFactory.Register("paypal", paypal.New)
	adapterFactory.Register("omise", omise.New)
	adapterFactory.Register("scb", scb.New)

	// A process-local registry, not prometheus.DefaultRegisterer: main is
	// re-entered across table-driven tests in this package, and the
	// default registry would reject the pipeline's second registration.
	metricsRegistry := prometheus.NewRegistry()
	appMetrics := metrics.New(metricsRegistry)

	// C4 resilience pipeline, shared by both orchestrators and backing the
	// router's breaker check
	pipeline := resilience.New(resilience.Config{
		BreakerMaxRequests:  cfg.Resilience.BreakerMaxRequests,
		BreakerInterval:     cfg.Resilience.BreakerInterval,
		BreakerTimeout:      cfg.Resilience.BreakerTimeout,
		BreakerFailureRatio: cfg.Resilience.BreakerFailureRatio,
		RetryMaxAttempts:    cfg.Resilience.RetryMaxAttempts,
		RetryBaseDelay:      cfg.Resilience.RetryBaseDelay,
		RetryMaxDelay:       cfg.Resilience.RetryMaxDelay,
		CallTimeout:         cfg.Resilience.CallTimeout,
	}, metricsRegistry)

	// C6 routing
	router := routing.New(providerRegistry, pipeline)

	// C10 audit log, C11 event publisher
	auditLog := audit.New(auditRepo)
	publisher := events.New(nil, zapLog)

	paymentOrchestrator := orchestrator.NewPaymentOrchestrator(
		paymentRepo, uow, router, adapterFactory, pipeline, idemStore, auditLog, publisher, appMetrics, zapLog,
	)
	refundOrchestrator := orchestrator.NewRefundOrchestrator(
		refundRepo, paymentRepo, providerRepo, uow, adapterFactory, pipeline, idemStore, auditLog, publisher, appMetrics, zapLog,
	)

	// C9 webhook ingress/processor, C12 scheduler
	rateLimiter := webhook.NewRateLimiterWithRate(cfg.RateLimit.WebhookRequestsPerSecond, cfg.RateLimit.WebhookBurst, 0)
	ingress := webhook.NewIngress(providerRepo, webhookRepo, adapterFactory, rateLimiter, zapLog).WithMetrics(appMetrics)
	processor := webhook.NewProcessor(webhookRepo, providerRepo, paymentRepo, refundRepo, adapterFactory, auditLog, publisher, zapLog).WithMetrics(appMetrics)

	bgScheduler := scheduler.NewWithIntervals(
		webhookRepo, processor, rateLimiter, zapLog,
		cfg.Scheduler.WebhookRetryInterval, cfg.Scheduler.CleanupInterval, cfg.Scheduler.WebhookRetention,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bgScheduler.Start(ctx)

	// HTTP handlers
	paymentHandler := handlers.NewPaymentHandler(paymentOrchestrator, paymentRepo)
	refundHandler := handlers.NewRefundHandler(refundOrchestrator)
	webhookHandler := handlers.NewWebhookHandler(ingress, processor)
	providerHandler := handlers.NewProviderHandler(providerRegistry)

	authMiddleware := middleware.Auth(jwtService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r)
	registerHealthRoute(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})))
	registerAPIV1Routes(r, routeDeps{
		paymentHandler:  paymentHandler,
		refundHandler:   refundHandler,
		webhookHandler:  webhookHandler,
		providerHandler: providerHandler,
		authMiddleware:  authMiddleware,
	})

	log.Println("Registered Routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down server...")
		bgScheduler.Stop()
		cancel()
	}()

	log.Printf("paygate backend starting on port %s", cfg.Server.Port)
	log.Printf("API: http://localhost:%s/v1", cfg.Server.Port)
	log.Printf("Health: http://localhost:%s/health", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
