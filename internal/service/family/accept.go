package family

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

// AcceptInvite admits the accepting account into the invite's family. The
// whole check-then-write sequence runs inside one transaction holding the
// exclusive lock on the family row, so two acceptances racing for the last
// seat serialize: one commits, the other re-counts and fails FamilyFull.
//
// Validation order inside the lock:
//  1. invite still pending and unexpired (lapsed invites are flipped to
//     expired here, and that flip commits even though the accept fails)
//  2. invite not bound to a different email
//  3. accepting account is not the owner
//  4. not already a member of this family
//  5. no membership in, or ownership of, any other family
//  6. no active entitlement of its own
//  7. seat available after a fresh member count
func (s *Service) AcceptInvite(ctx context.Context, inviteToken string, accountID uuid.UUID) error {
	if inviteToken == "" {
		return apperrors.BadRequest("invite token is required")
	}

	invite, err := s.store.GetInviteByToken(ctx, inviteToken)
	if err != nil {
		return err
	}
	if invite == nil {
		return apperrors.NotFound("invite")
	}

	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.FamilyTxLatency)
	}

	// A lapsed-invite flip must survive the failed acceptance, so it is
	// reported through lazyExpired and the transaction commits.
	var lazyExpired bool
	err = s.store.WithFamilyLock(ctx, invite.FamilyID, func(tx repository.FamilyTx) error {
		current, err := tx.GetInviteByToken(ctx, inviteToken)
		if err != nil {
			return err
		}
		if current == nil {
			return apperrors.NotFound("invite")
		}

		switch current.Status {
		case model.InviteStatusPending:
		case model.InviteStatusExpired:
			return apperrors.New(apperrors.CodeInviteExpired, "invite has expired")
		default:
			return apperrors.New(apperrors.CodeInviteNotPending, "invite is no longer pending")
		}

		now := s.clock.Now()
		lapsed, err := expireIfLapsed(ctx, tx, current, now)
		if err != nil {
			return err
		}
		if lapsed {
			lazyExpired = true
			return nil
		}

		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !current.EmailMatches(account.Email) {
			return apperrors.New(apperrors.CodeInviteEmailBound, "invite is bound to a different email")
		}

		family := tx.Family()
		if accountID == family.OwnerID {
			return apperrors.New(apperrors.CodeOwnerCannotAcceptOwn, "owner cannot accept own invite")
		}

		membership, err := tx.GetMembershipByUser(ctx, accountID)
		if err != nil {
			return err
		}
		if membership != nil {
			if membership.FamilyID == family.ID {
				return apperrors.New(apperrors.CodeAlreadyMember, "already a member of this family")
			}
			return apperrors.New(apperrors.CodeMemberOfOtherFamily, "already a member of another family")
		}

		ownedFamily, err := tx.GetFamilyByOwner(ctx, accountID)
		if err != nil {
			return err
		}
		if ownedFamily != nil {
			return apperrors.New(apperrors.CodeOwnerOfOtherFamily, "account owns another family")
		}

		if account.HasOwnPlan() || account.TrialActive(now) {
			return apperrors.New(apperrors.CodeHasActiveEntitlement, "account still has its own entitlement")
		}

		accepted, err := tx.CountAcceptedMembers(ctx)
		if err != nil {
			return err
		}
		if accepted+1 >= family.MaxMembers {
			return apperrors.New(apperrors.CodeFamilyFull, "family has no free seats")
		}

		if err := tx.CreateMembership(ctx, &model.FamilyMembership{
			ID:       uuid.New(),
			FamilyID: family.ID,
			UserID:   accountID,
			JoinedAt: now,
		}); err != nil {
			return err
		}

		usedAt := now
		if err := tx.UpdateInviteStatus(ctx, current.ID, model.InviteStatusAccepted, &accountID, &usedAt); err != nil {
			return err
		}

		// Step 6 already rejected live entitlement; clearing again keeps
		// the member invariant even if a grant slipped in out of band.
		if err := tx.ClearAccountEntitlement(ctx, accountID); err != nil {
			return err
		}

		return tx.EmitEvent(ctx, model.EventMemberJoined, map[string]string{
			"family_id": family.ID.String(),
			"user_id":   accountID.String(),
		})
	})

	if timer != nil {
		timer.ObserveDuration()
	}
	if err == nil && lazyExpired {
		err = apperrors.New(apperrors.CodeInviteExpired, "invite has expired")
	}
	s.recordAcceptOutcome(err)
	if err != nil {
		return err
	}

	s.logger.Info("invite accepted",
		"family_id", invite.FamilyID.String(),
		"user_id", accountID.String())
	return nil
}

func (s *Service) recordAcceptOutcome(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(apperrors.CodeOf(err))
		if apperrors.Is(err, apperrors.CodeLockTimeout) {
			s.metrics.LockTimeouts.Inc()
		}
	}
	s.metrics.AcceptAttempts.WithLabelValues(outcome).Inc()
}

// expireIfLapsed is the shared lazy-expiry transition: the sweep applies the
// same predicate in bulk. Kept separate so both paths stay in step.
func expireIfLapsed(ctx context.Context, tx repository.FamilyTx, invite *model.FamilyInvite, now time.Time) (bool, error) {
	if !invite.Pending() || !invite.ExpiredAt(now) {
		return false, nil
	}
	if err := tx.UpdateInviteStatus(ctx, invite.ID, model.InviteStatusExpired, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}
