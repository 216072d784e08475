package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRevoked  InviteStatus = "revoked"
	InviteStatusExpired  InviteStatus = "expired"
)

// InviteTTL is the window between creation and expiry.
const InviteTTL = 7 * 24 * time.Hour

// MaxPendingInvitesPerFamily caps outstanding invites regardless of plan
// size, to bound abuse independent of computed slots.
const MaxPendingInvitesPerFamily = 5

// FamilyInvite is a single-use, time-boxed token. Email, when set, binds
// acceptance to that account email (case-insensitive). Pending invites
// reserve a seat against the family pool.
type FamilyInvite struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	FamilyID  uuid.UUID    `json:"family_id" db:"family_id"`
	Token     string       `json:"token" db:"token"`
	Email     *string      `json:"email,omitempty" db:"email"`
	Status    InviteStatus `json:"status" db:"status"`
	ExpiresAt time.Time    `json:"expires_at" db:"expires_at"`
	UsedBy    *uuid.UUID   `json:"used_by,omitempty" db:"used_by"`
	UsedAt    *time.Time   `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// Pending reports whether the invite is still in its only non-terminal state.
func (i *FamilyInvite) Pending() bool {
	return i.Status == InviteStatusPending
}

// ExpiredAt reports whether the invite's window has passed at now. Status is
// not consulted; callers combine this with Pending for the lazy-expiry flip.
func (i *FamilyInvite) ExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EmailMatches reports whether the invite is open to the given account email.
// Unbound invites match any email.
func (i *FamilyInvite) EmailMatches(email string) bool {
	if i.Email == nil {
		return true
	}
	return strings.EqualFold(*i.Email, email)
}
