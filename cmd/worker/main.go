package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/streamhaven/entitlement-api/internal/repository/postgres"
	"github.com/streamhaven/entitlement-api/internal/service/family"
	"github.com/streamhaven/entitlement-api/internal/worker"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/messaging/redis"
	"github.com/streamhaven/entitlement-api/pkg/metrics"
	"github.com/streamhaven/entitlement-api/pkg/token"
	"github.com/streamhaven/entitlement-api/pkg/validator"
	outboxWorker "github.com/streamhaven/entitlement-api/pkg/worker"
)

// Env is the worker binary's environment-driven configuration.
type Env struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	HealthAddr  string `envconfig:"HEALTH_ADDR" default:":8081"`

	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	OutboxMaxRetries   int           `envconfig:"OUTBOX_MAX_RETRIES" default:"3"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"30s"`
	OutboxVisibility   time.Duration `envconfig:"OUTBOX_VISIBILITY" default:"1m"`

	InviteSweepInterval time.Duration `envconfig:"INVITE_SWEEP_INTERVAL" default:"1h"`
	FamilyLockWait      time.Duration `envconfig:"FAMILY_LOCK_WAIT" default:"3s"`

	CleanupInterval       time.Duration `envconfig:"CLEANUP_INTERVAL" default:"24h"`
	BillingEventRetention time.Duration `envconfig:"BILLING_EVENT_RETENTION" default:"2160h"`
	OutboxRetention       time.Duration `envconfig:"OUTBOX_RETENTION" default:"168h"`
}

func setupHealthCheck(addr string, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			appLogger.Fatal(err, "health check server failed")
		}
	}()
}

func main() {
	var env Env
	if err := envconfig.Process("entitlement", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to load environment")
	}

	appLogger := logger.NewLogger(nil)

	db, err := sqlx.Connect("postgres", env.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewBroker(redis.Config{URL: env.RedisURL}, appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(base)
	billingRepo := postgres.NewBillingEventRepository(base)
	accountRepo := postgres.NewAccountRepository(base)
	familyStore := postgres.NewFamilyStore(base, env.FamilyLockWait)

	m := metrics.NewMetrics("entitlement", "worker")
	clk := clock.System()

	familySvc := family.NewService(familyStore, accountRepo, validator.New(), token.NewGenerator(), clk, appLogger, m)

	processor := outboxWorker.NewOutboxProcessor(outboxRepo, broker, outboxWorker.OutboxProcessorConfig{
		BatchSize:    env.OutboxBatchSize,
		PollInterval: env.OutboxPollInterval,
		MaxRetries:   env.OutboxMaxRetries,
		RetryDelay:   env.OutboxRetryDelay,
		Visibility:   env.OutboxVisibility,
	}, appLogger, m)

	sweep := worker.NewInviteSweepWorker(familySvc, clk, env.InviteSweepInterval, appLogger)

	retention := worker.NewRetentionWorker(
		billingRepo,
		outboxRepo,
		env.CleanupInterval,
		env.BillingEventRetention,
		env.OutboxRetention,
		appLogger,
	)

	setupHealthCheck(env.HealthAddr, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	go sweep.Start(ctx)
	go retention.Start(ctx)
	processor.Start(ctx)
}
