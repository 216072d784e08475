package worker

import (
	"context"
	"time"

	"github.com/streamhaven/entitlement-api/internal/service/family"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	"github.com/streamhaven/entitlement-api/pkg/logger"
)

// InviteSweepWorker periodically flips lapsed pending invites to expired.
// Acceptance already handles lapsed invites lazily; the sweep keeps seat
// accounting honest for invites nobody ever touches again.
type InviteSweepWorker struct {
	families *family.Service
	clock    clock.Clock
	interval time.Duration
	logger   *logger.Logger
}

func NewInviteSweepWorker(families *family.Service, clk clock.Clock, interval time.Duration, log *logger.Logger) *InviteSweepWorker {
	return &InviteSweepWorker{
		families: families,
		clock:    clk,
		interval: interval,
		logger:   log,
	}
}

func (w *InviteSweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting invite sweep worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down invite sweep worker")
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error(err, "invite sweep failed")
			}
		}
	}
}

func (w *InviteSweepWorker) sweep(ctx context.Context) error {
	expired, err := w.families.ExpirePendingInvites(ctx, w.clock.Now())
	if err != nil {
		return err
	}
	if expired > 0 {
		w.logger.Info("expired lapsed invites", "count", expired)
	}
	return nil
}
