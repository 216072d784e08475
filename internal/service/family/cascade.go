package family

import (
	"context"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
)

// OnOwnerPlanChanged resizes the owner's family after an upstream
// entitlement change. On downgrade below current usage the newest members
// are evicted first, preserving tenure for earlier members. Pending invites
// that no longer fit are revoked, newest first. Capacity is updated
// unconditionally so upgrades open seats immediately.
//
// Takes the same family lock as AcceptInvite: a cascade and a concurrent
// acceptance on one family never interleave.
func (s *Service) OnOwnerPlanChanged(ctx context.Context, ownerID uuid.UUID, newScreens int) error {
	family, err := s.store.GetFamilyByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if family == nil {
		return nil
	}

	var evicted, revoked int
	err = s.store.WithFamilyLock(ctx, family.ID, func(tx repository.FamilyTx) error {
		members, err := tx.ListMembersNewestFirst(ctx)
		if err != nil {
			return err
		}

		occupied := 1 + len(members)
		if occupied > newScreens {
			// The owner's seat is not evictable, so the cut can exceed the
			// member count when capacity drops to zero or below.
			cut := occupied - newScreens
			if cut > len(members) {
				cut = len(members)
			}
			for _, member := range members[:cut] {
				if err := tx.DeleteMembership(ctx, member.ID); err != nil {
					return err
				}
				if err := tx.EmitEvent(ctx, model.EventMemberEvicted, map[string]string{
					"family_id": tx.Family().ID.String(),
					"user_id":   member.UserID.String(),
				}); err != nil {
					return err
				}
				evicted++
			}
		}

		// Pending invites past the shrunken pool cannot be honored.
		// Revoke from the newest end until the seat invariant holds again.
		remaining := len(members) - evicted
		if AvailableSlots(newScreens, remaining, 0) <= 0 {
			// No invite could ever fit; clear them all in one statement.
			n, err := tx.RevokePendingInvites(ctx)
			if err != nil {
				return err
			}
			revoked = int(n)
		} else {
			pending, err := tx.ListPendingInvites(ctx)
			if err != nil {
				return err
			}
			for len(pending) > 0 && AvailableSlots(newScreens, remaining, len(pending)) < 0 {
				last := pending[len(pending)-1]
				if err := tx.UpdateInviteStatus(ctx, last.ID, model.InviteStatusRevoked, nil, nil); err != nil {
					return err
				}
				pending = pending[:len(pending)-1]
				revoked++
			}
		}
		if revoked > 0 {
			if err := tx.EmitEvent(ctx, model.EventInvitesRevoked, map[string]interface{}{
				"family_id": tx.Family().ID.String(),
				"count":     revoked,
			}); err != nil {
				return err
			}
		}

		if err := tx.SetMaxMembers(ctx, newScreens); err != nil {
			return err
		}

		return tx.EmitEvent(ctx, model.EventPlanChanged, map[string]interface{}{
			"family_id":   tx.Family().ID.String(),
			"owner_id":    ownerID.String(),
			"max_members": newScreens,
		})
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		if evicted > 0 {
			s.metrics.MembersEvicted.Add(float64(evicted))
		}
		if revoked > 0 {
			s.metrics.InvitesRevoked.Add(float64(revoked))
		}
	}
	if evicted > 0 || revoked > 0 {
		s.logger.Info("family resized",
			"family_id", family.ID.String(),
			"new_capacity", newScreens,
			"evicted", evicted,
			"invites_revoked", revoked)
	}
	return nil
}
