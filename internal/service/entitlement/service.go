// Package entitlement decides whether an account may stream right now.
// Evaluation is pure read: it never locks, never caches, and always derives
// the answer from current rows, so upstream changes (plan deactivated, owner
// downgraded) take effect on the very next check.
package entitlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/metrics"
)

type Service struct {
	accounts repository.AccountRepository
	plans    repository.PlanRepository
	families repository.FamilyReader
	clock    clock.Clock
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(
	accounts repository.AccountRepository,
	plans repository.PlanRepository,
	families repository.FamilyReader,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		accounts: accounts,
		plans:    plans,
		families: families,
		clock:    clk,
		logger:   log,
		metrics:  m,
	}
}

// HasStreamingAccess reports whether the account currently holds streaming
// entitlement, directly or borrowed from its family owner.
func (s *Service) HasStreamingAccess(ctx context.Context, accountID uuid.UUID) (bool, error) {
	info, err := s.GetUserPlanInfo(ctx, accountID)
	if err != nil {
		return false, err
	}
	granted := info != nil
	if s.metrics != nil {
		result := "denied"
		if granted {
			result = "granted"
		}
		s.metrics.EntitlementChecks.WithLabelValues(result).Inc()
	}
	return granted, nil
}

// GetUserPlanInfo returns a snapshot describing the account's entitlement,
// or nil when it has none.
func (s *Service) GetUserPlanInfo(ctx context.Context, accountID uuid.UUID) (*model.PlanInfo, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	membership, err := s.families.GetMembershipByUser(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Members must never hold their own entitlement. Seeing one that does
	// means upstream data corruption: log it and answer conservatively.
	if membership != nil && (account.HasOwnPlan() || account.TrialEndsAt != nil) {
		if s.metrics != nil {
			s.metrics.InvariantViolations.Inc()
		}
		s.logger.Error(nil, "family member holds own entitlement",
			"account_id", account.ID.String(),
			"family_id", membership.FamilyID.String())
		return nil, nil
	}

	if info, err := s.evaluateOwn(ctx, account, true); err != nil || info != nil {
		return info, err
	}

	if membership == nil {
		return nil, nil
	}

	family, err := s.families.GetFamily(ctx, membership.FamilyID)
	if err != nil {
		return nil, err
	}

	owner, err := s.accounts.Get(ctx, family.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load family owner: %w", err)
	}

	// Membership grants access only while the owner qualifies on their own.
	return s.evaluateOwn(ctx, owner, false)
}

// evaluateOwn applies the two direct checks: active paid plan, then active
// trial. Returns nil when neither holds.
func (s *Service) evaluateOwn(ctx context.Context, account *model.Account, isOwner bool) (*model.PlanInfo, error) {
	if account.HasOwnPlan() {
		plan, err := s.plans.Get(ctx, *account.PlanID)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan: %w", err)
		}
		if plan.Active {
			return &model.PlanInfo{
				IsOwner:    isOwner,
				PlanID:     account.PlanID,
				PlanName:   plan.Name,
				MaxScreens: account.MaxScreens,
			}, nil
		}
	}

	if account.TrialActive(s.clock.Now()) {
		return &model.PlanInfo{
			IsOwner:     isOwner,
			IsTrial:     true,
			MaxScreens:  account.MaxScreens,
			TrialEndsAt: account.TrialEndsAt,
		}, nil
	}

	return nil, nil
}
