package model

import (
	"time"

	"github.com/google/uuid"
)

// Family is a seat-pool container owned by exactly one account. MaxMembers
// mirrors the owner's plan screens and counts the owner as one seat.
type Family struct {
	Base
	OwnerID    uuid.UUID `json:"owner_id" db:"owner_id"`
	Name       string    `json:"name" db:"name"`
	MaxMembers int       `json:"max_members" db:"max_members"`
}

// FamilyMembership links one account to one family. An account holds at most
// one membership and cannot be a member while owning a family.
type FamilyMembership struct {
	ID       uuid.UUID `json:"id" db:"id"`
	FamilyID uuid.UUID `json:"family_id" db:"family_id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

// FamilyOverview is the read model returned to the owner.
type FamilyOverview struct {
	Family         *Family             `json:"family"`
	Members        []*FamilyMembership `json:"members"`
	PendingInvites []*FamilyInvite     `json:"pending_invites"`
	AvailableSlots int                 `json:"available_slots"`
}
