// Package billing applies payment-gateway events to entitlement state. The
// (transaction, event type) pair is claimed in a durable ledger before any
// mutation, so redelivered webhooks are dropped on every instance, not just
// the one that saw them first. A claim whose apply fails is released again,
// keeping the gateway's retry able to land.
package billing

import (
	"context"
	"fmt"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	"github.com/streamhaven/entitlement-api/internal/service/family"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
	"github.com/streamhaven/entitlement-api/pkg/logger"
)

type Service struct {
	events    repository.BillingEventRepository
	accounts  repository.AccountRepository
	plans     repository.PlanRepository
	familySvc *family.Service
	clock     clock.Clock
	logger    *logger.Logger
}

func NewService(
	events repository.BillingEventRepository,
	accounts repository.AccountRepository,
	plans repository.PlanRepository,
	familySvc *family.Service,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		events:    events,
		accounts:  accounts,
		plans:     plans,
		familySvc: familySvc,
		clock:     clk,
		logger:    log,
	}
}

// ProcessPaymentEvent applies one gateway event: dedupe, mutate the owner's
// plan fields, then cascade the new capacity into the family.
func (s *Service) ProcessPaymentEvent(ctx context.Context, evt *model.PaymentEvent) error {
	if evt.TransactionID == "" || evt.EventType == "" {
		return apperrors.BadRequest("transaction_id and event_type are required")
	}

	fresh, err := s.events.MarkProcessed(ctx, evt.TransactionID, evt.EventType, s.clock.Now())
	if err != nil {
		return err
	}
	if !fresh {
		s.logger.Info("duplicate payment event skipped",
			"transaction_id", evt.TransactionID,
			"event_type", evt.EventType)
		return nil
	}

	if err := s.apply(ctx, evt); err != nil {
		// A failed apply must give the claim back, or the gateway's retry
		// of the same event would be swallowed as a duplicate and the
		// entitlement change lost.
		if relErr := s.events.Release(ctx, evt.TransactionID, evt.EventType); relErr != nil {
			s.logger.Error(relErr, "failed to release billing event claim",
				"transaction_id", evt.TransactionID,
				"event_type", evt.EventType)
		}
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, evt *model.PaymentEvent) error {
	switch evt.EventType {
	case model.PaymentEventSucceeded, model.PaymentEventPlanChanged:
		return s.applyPlanGrant(ctx, evt)
	case model.PaymentEventCancelled:
		return s.applyCancellation(ctx, evt)
	case model.PaymentEventTrialStarted:
		return s.applyTrialStart(ctx, evt)
	default:
		return apperrors.BadRequest(fmt.Sprintf("unknown event type %q", evt.EventType))
	}
}

func (s *Service) applyTrialStart(ctx context.Context, evt *model.PaymentEvent) error {
	if evt.TrialEndsAt == nil || !evt.TrialEndsAt.After(s.clock.Now()) {
		return apperrors.BadRequest("trial_ends_at must be in the future")
	}

	if err := s.accounts.SetTrial(ctx, evt.AccountID, evt.TrialEndsAt); err != nil {
		return err
	}

	s.logger.Info("trial started",
		"account_id", evt.AccountID.String(),
		"trial_ends_at", evt.TrialEndsAt.String())
	return nil
}

func (s *Service) applyPlanGrant(ctx context.Context, evt *model.PaymentEvent) error {
	if evt.PlanID == nil {
		return apperrors.BadRequest("plan_id is required for plan grants")
	}

	screens := evt.Screens
	if screens <= 0 {
		plan, err := s.plans.Get(ctx, *evt.PlanID)
		if err != nil {
			return err
		}
		screens = plan.Screens
	}

	if err := s.accounts.SetPlan(ctx, evt.AccountID, evt.PlanID, screens); err != nil {
		return err
	}

	s.logger.Info("plan granted",
		"account_id", evt.AccountID.String(),
		"plan_id", evt.PlanID.String(),
		"screens", screens)
	return s.familySvc.OnOwnerPlanChanged(ctx, evt.AccountID, screens)
}

func (s *Service) applyCancellation(ctx context.Context, evt *model.PaymentEvent) error {
	if err := s.accounts.SetPlan(ctx, evt.AccountID, nil, 1); err != nil {
		return err
	}

	s.logger.Info("plan cancelled", "account_id", evt.AccountID.String())
	return s.familySvc.OnOwnerPlanChanged(ctx, evt.AccountID, 1)
}
