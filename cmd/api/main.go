package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/streamhaven/entitlement-api/internal/config"
	"github.com/streamhaven/entitlement-api/internal/handler"
	billingHandler "github.com/streamhaven/entitlement-api/internal/handler/billing"
	entitlementHandler "github.com/streamhaven/entitlement-api/internal/handler/entitlement"
	familyHandler "github.com/streamhaven/entitlement-api/internal/handler/family"
	planHandler "github.com/streamhaven/entitlement-api/internal/handler/plan"
	"github.com/streamhaven/entitlement-api/internal/middleware"
	"github.com/streamhaven/entitlement-api/internal/repository/postgres"
	"github.com/streamhaven/entitlement-api/internal/router"
	billingService "github.com/streamhaven/entitlement-api/internal/service/billing"
	entitlementService "github.com/streamhaven/entitlement-api/internal/service/entitlement"
	familyService "github.com/streamhaven/entitlement-api/internal/service/family"
	"github.com/streamhaven/entitlement-api/pkg/auth"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/messaging/redis"
	"github.com/streamhaven/entitlement-api/pkg/metrics"
	"github.com/streamhaven/entitlement-api/pkg/token"
	"github.com/streamhaven/entitlement-api/pkg/validator"
	outboxWorker "github.com/streamhaven/entitlement-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	accountRepo := postgres.NewAccountRepository(base)
	planRepo := postgres.NewPlanRepository(base)
	familyStore := postgres.NewFamilyStore(base, cfg.Family.LockWait)
	billingRepo := postgres.NewBillingEventRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	m := metrics.NewMetrics("entitlement", "api")
	clk := clock.System()

	entitlementSvc := entitlementService.NewService(accountRepo, planRepo, familyStore, clk, appLogger, m)
	familySvc := familyService.NewService(familyStore, accountRepo, validator.New(), token.NewGenerator(), clk, appLogger, m)
	billingSvc := billingService.NewService(billingRepo, accountRepo, planRepo, familySvc, clk, appLogger)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	r := router.NewRouter(
		authMiddleware,
		handler.NewHealthHandler(db),
		planHandler.NewHandler(planRepo, cfg.Plans.CacheTTL),
		billingHandler.NewHandler(billingSvc, cfg.Webhook.Secret),
		entitlementHandler.NewHandler(entitlementSvc),
		familyHandler.NewHandler(familySvc),
		router.Config{
			RateLimit:      rate.Limit(cfg.Server.RateLimit),
			RateBurst:      cfg.Server.RateBurst,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORS:           middleware.DefaultCORSConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := redis.NewBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	processor := outboxWorker.NewOutboxProcessor(outboxRepo, broker, outboxWorker.OutboxProcessorConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxRetries:   cfg.Outbox.MaxRetries,
		RetryDelay:   cfg.Outbox.RetryDelay,
		Visibility:   cfg.Outbox.Visibility,
	}, appLogger, m)
	go processor.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
