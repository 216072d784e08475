// Package family implements the seat pool, the invite lifecycle, the
// membership transaction coordinator, and the plan-change cascade. Every
// mutation runs under the exclusive family-row lock so that concurrent
// acceptances and cascades cannot interleave.
package family

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/metrics"
	"github.com/streamhaven/entitlement-api/pkg/token"
	"github.com/streamhaven/entitlement-api/pkg/validator"
)

type Service struct {
	store     repository.FamilyStore
	accounts  repository.AccountRepository
	validator validator.Validator
	tokens    token.Generator
	clock     clock.Clock
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	store repository.FamilyStore,
	accounts repository.AccountRepository,
	v validator.Validator,
	tokens token.Generator,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		store:     store,
		accounts:  accounts,
		validator: v,
		tokens:    tokens,
		clock:     clk,
		logger:    log,
		metrics:   m,
	}
}

// CreateInvite creates a pending invite for the owner's family, creating
// the family itself on first use. Capacity is re-checked under the lock so
// concurrent creations cannot over-promise seats.
func (s *Service) CreateInvite(ctx context.Context, ownerID uuid.UUID, email *string) (*model.FamilyInvite, error) {
	if email != nil {
		if err := s.validator.ValidateEmail(*email); err != nil {
			return nil, apperrors.BadRequest(err.Error())
		}
	}

	owner, err := s.accounts.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.MaxScreens < 2 {
		return nil, apperrors.New(apperrors.CodePlanTooSmall, "plan does not include family seats")
	}
	if email != nil && strings.EqualFold(*email, owner.Email) {
		return nil, apperrors.BadRequest("cannot invite your own email")
	}
	if email != nil {
		// Early, friendlier failure when the invited email is already taken
		// by a member of some family. Acceptance re-checks under the lock.
		if existing, err := s.accounts.GetByEmail(ctx, *email); err == nil && existing != nil {
			if m, err := s.store.GetMembershipByUser(ctx, existing.ID); err == nil && m != nil {
				return nil, apperrors.New(apperrors.CodeMemberOfOtherFamily, "invited account already belongs to a family")
			}
		}
	}

	family, err := s.store.EnsureFamily(ctx, ownerID, owner.Name, owner.MaxScreens)
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.Generate()
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	invite := &model.FamilyInvite{
		ID:        uuid.New(),
		FamilyID:  family.ID,
		Token:     tok,
		Email:     email,
		Status:    model.InviteStatusPending,
		ExpiresAt: s.clock.Now().Add(model.InviteTTL),
		CreatedAt: s.clock.Now(),
	}

	err = s.store.WithFamilyLock(ctx, family.ID, func(tx repository.FamilyTx) error {
		accepted, err := tx.CountAcceptedMembers(ctx)
		if err != nil {
			return err
		}
		pending, err := tx.CountPendingInvites(ctx)
		if err != nil {
			return err
		}
		if err := checkInviteCapacity(tx.Family().MaxMembers, accepted, pending); err != nil {
			return err
		}
		return tx.CreateInvite(ctx, invite)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.InvitesCreated.Inc()
	}
	s.logger.Info("invite created",
		"family_id", family.ID.String(),
		"invite_id", invite.ID.String())
	return invite, nil
}

// RevokeInvite moves a pending invite to the terminal revoked state. Only
// the family owner may revoke.
func (s *Service) RevokeInvite(ctx context.Context, inviteID, requestingOwnerID uuid.UUID) error {
	invite, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite == nil {
		return apperrors.NotFound("invite")
	}

	family, err := s.store.GetFamily(ctx, invite.FamilyID)
	if err != nil {
		return err
	}
	if family.OwnerID != requestingOwnerID {
		return apperrors.New(apperrors.CodeNotOwner, "only the family owner can revoke invites")
	}

	err = s.store.WithFamilyLock(ctx, family.ID, func(tx repository.FamilyTx) error {
		current, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if current == nil {
			return apperrors.NotFound("invite")
		}
		if !current.Pending() {
			return apperrors.New(apperrors.CodeInviteNotPending, "invite is no longer pending")
		}
		return tx.UpdateInviteStatus(ctx, inviteID, model.InviteStatusRevoked, nil, nil)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.InvitesRevoked.Inc()
	}
	return nil
}

// LeaveFamily removes the caller's own membership. The account regains no
// entitlement; the next access check simply finds nothing.
func (s *Service) LeaveFamily(ctx context.Context, accountID uuid.UUID) error {
	membership, err := s.store.GetMembershipByUser(ctx, accountID)
	if err != nil {
		return err
	}
	if membership == nil {
		return apperrors.New(apperrors.CodeNotMember, "account is not a family member")
	}

	return s.store.WithFamilyLock(ctx, membership.FamilyID, func(tx repository.FamilyTx) error {
		current, err := tx.GetMembershipByUser(ctx, accountID)
		if err != nil {
			return err
		}
		if current == nil || current.FamilyID != tx.Family().ID {
			return apperrors.New(apperrors.CodeNotMember, "account is not a family member")
		}
		if err := tx.DeleteMembership(ctx, current.ID); err != nil {
			return err
		}
		if err := tx.ClearAccountEntitlement(ctx, accountID); err != nil {
			return err
		}
		return tx.EmitEvent(ctx, model.EventMemberLeft, map[string]string{
			"family_id": tx.Family().ID.String(),
			"user_id":   accountID.String(),
		})
	})
}

// RemoveMember lets the owner evict a member directly.
func (s *Service) RemoveMember(ctx context.Context, ownerID, memberUserID uuid.UUID) error {
	family, err := s.store.GetFamilyByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if family == nil {
		return apperrors.New(apperrors.CodeNotOwner, "account does not own a family")
	}

	return s.store.WithFamilyLock(ctx, family.ID, func(tx repository.FamilyTx) error {
		membership, err := tx.GetMembershipByUser(ctx, memberUserID)
		if err != nil {
			return err
		}
		if membership == nil || membership.FamilyID != tx.Family().ID {
			return apperrors.New(apperrors.CodeNotMember, "account is not a member of this family")
		}
		if err := tx.DeleteMembership(ctx, membership.ID); err != nil {
			return err
		}
		return tx.EmitEvent(ctx, model.EventMemberRemoved, map[string]string{
			"family_id": tx.Family().ID.String(),
			"user_id":   memberUserID.String(),
		})
	})
}

// Overview returns the owner's family with members, pending invites and the
// canonical slot count.
func (s *Service) Overview(ctx context.Context, ownerID uuid.UUID) (*model.FamilyOverview, error) {
	family, err := s.store.GetFamilyByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, apperrors.NotFound("family")
	}

	members, err := s.store.ListMembers(ctx, family.ID)
	if err != nil {
		return nil, err
	}
	invites, err := s.store.ListPendingInvites(ctx, family.ID)
	if err != nil {
		return nil, err
	}

	return &model.FamilyOverview{
		Family:         family,
		Members:        members,
		PendingInvites: invites,
		AvailableSlots: AvailableSlots(family.MaxMembers, len(members), len(invites)),
	}, nil
}

// ExpirePendingInvites is the periodic bulk sweep. Correctness never depends
// on it: the accept path expires lapsed invites lazily on its own.
func (s *Service) ExpirePendingInvites(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.ExpirePendingInvites(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.InvitesExpired.Add(float64(n))
		}
		s.logger.Info("expired pending invites", "count", n)
	}
	return n, nil
}
