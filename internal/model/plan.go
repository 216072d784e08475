package model

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a purchasable product. Read-only from this service's perspective;
// the catalog is administered externally.
type Plan struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Name    string    `json:"name" db:"name"`
	Screens int       `json:"screens" db:"screens"`
	Active  bool      `json:"active" db:"active"`
}

// PlanInfo is the snapshot returned by the entitlement evaluator. IsOwner is
// false when entitlement is borrowed from a family owner.
type PlanInfo struct {
	IsOwner     bool       `json:"is_owner"`
	IsTrial     bool       `json:"is_trial"`
	PlanID      *uuid.UUID `json:"plan_id,omitempty"`
	PlanName    string     `json:"plan_name,omitempty"`
	MaxScreens  int        `json:"max_screens"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}
