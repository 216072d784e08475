package model

import (
	"time"

	"github.com/google/uuid"
)

// Account is a user of the streaming service. A family member never holds
// its own entitlement: PlanID, TrialEndsAt are null and MaxScreens is 1
// while a membership row exists for the account.
type Account struct {
	Base
	Email       string     `json:"email" db:"email"`
	Name        string     `json:"name" db:"name"`
	PlanID      *uuid.UUID `json:"plan_id" db:"plan_id"`
	MaxScreens  int        `json:"max_screens" db:"max_screens"`
	TrialEndsAt *time.Time `json:"trial_ends_at" db:"trial_ends_at"`
}

// HasOwnPlan reports whether the account references any plan. Whether that
// plan is active is decided by the entitlement evaluator against the plan row.
func (a *Account) HasOwnPlan() bool {
	return a.PlanID != nil
}

// TrialActive reports whether the account has an unexpired trial at now.
func (a *Account) TrialActive(now time.Time) bool {
	return a.TrialEndsAt != nil && a.TrialEndsAt.After(now)
}
