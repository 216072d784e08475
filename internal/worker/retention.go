package worker

import (
	"context"
	"time"

	"github.com/streamhaven/entitlement-api/internal/repository"
	"github.com/streamhaven/entitlement-api/pkg/logger"
)

// RetentionWorker trims old rows from the billing idempotency ledger and
// the processed tail of the outbox.
type RetentionWorker struct {
	billing  repository.BillingEventRepository
	outbox   repository.OutboxRepository
	interval time.Duration

	billingRetention time.Duration
	outboxRetention  time.Duration

	logger *logger.Logger
}

func NewRetentionWorker(
	billing repository.BillingEventRepository,
	outbox repository.OutboxRepository,
	interval time.Duration,
	billingRetention time.Duration,
	outboxRetention time.Duration,
	log *logger.Logger,
) *RetentionWorker {
	return &RetentionWorker{
		billing:          billing,
		outbox:           outbox,
		interval:         interval,
		billingRetention: billingRetention,
		outboxRetention:  outboxRetention,
		logger:           log,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting retention worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down retention worker")
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *RetentionWorker) cleanup(ctx context.Context) {
	now := time.Now()

	// The ledger cutoff must stay comfortably beyond any gateway redelivery
	// window or duplicates would reapply.
	if n, err := w.billing.DeleteProcessedBefore(ctx, now.Add(-w.billingRetention)); err != nil {
		w.logger.Error(err, "failed to trim billing event ledger")
	} else if n > 0 {
		w.logger.Info("trimmed billing event ledger", "count", n)
	}

	if n, err := w.outbox.DeleteProcessedBefore(ctx, now.Add(-w.outboxRetention)); err != nil {
		w.logger.Error(err, "failed to trim processed outbox events")
	} else if n > 0 {
		w.logger.Info("trimmed processed outbox events", "count", n)
	}
}
