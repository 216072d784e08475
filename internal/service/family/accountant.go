package family

import (
	"github.com/streamhaven/entitlement-api/internal/model"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

// AvailableSlots computes free seats: capacity minus the owner's implicit
// seat, accepted members, and pending invites. May be negative; callers
// treat <= 0 as no capacity.
func AvailableSlots(maxMembers, acceptedMembers, pendingInvites int) int {
	return maxMembers - 1 - acceptedMembers - pendingInvites
}

// checkInviteCapacity gates invite creation: the pool must have a free seat
// and the per-family pending cap must not be reached.
func checkInviteCapacity(maxMembers, acceptedMembers, pendingInvites int) error {
	if pendingInvites >= model.MaxPendingInvitesPerFamily {
		return apperrors.New(apperrors.CodeTooManyPending, "too many outstanding invites")
	}
	if AvailableSlots(maxMembers, acceptedMembers, pendingInvites) <= 0 {
		return apperrors.New(apperrors.CodeNoCapacity, "no invite slots available")
	}
	return nil
}
