package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
)

// AccountRepository loads and mutates account entitlement fields. Accounts
// are only mutated here or inside a family-locked transaction, never both
// concurrently for the same family.
type AccountRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	SetPlan(ctx context.Context, id uuid.UUID, planID *uuid.UUID, maxScreens int) error
	SetTrial(ctx context.Context, id uuid.UUID, trialEndsAt *time.Time) error
}

// PlanRepository reads the externally administered plan catalog.
type PlanRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Plan, error)
	ListActive(ctx context.Context) ([]*model.Plan, error)
}

// FamilyReader provides the lock-free reads used by the entitlement
// evaluator and the family overview. Lookups that may legitimately find
// nothing (ByOwner, MembershipByUser, InviteByToken) return (nil, nil).
type FamilyReader interface {
	GetFamily(ctx context.Context, id uuid.UUID) (*model.Family, error)
	GetFamilyByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Family, error)
	GetMembershipByUser(ctx context.Context, userID uuid.UUID) (*model.FamilyMembership, error)
	ListMembers(ctx context.Context, familyID uuid.UUID) ([]*model.FamilyMembership, error)
	ListPendingInvites(ctx context.Context, familyID uuid.UUID) ([]*model.FamilyInvite, error)
	GetInviteByToken(ctx context.Context, token string) (*model.FamilyInvite, error)
	GetInvite(ctx context.Context, id uuid.UUID) (*model.FamilyInvite, error)
}

// FamilyTx is the operation set available while holding the exclusive lock
// on one family row. Every read reflects the locked transaction's view;
// every write joins its atomic scope.
type FamilyTx interface {
	// Family returns the locked row as read at lock acquisition.
	Family() *model.Family

	GetInviteByToken(ctx context.Context, token string) (*model.FamilyInvite, error)
	GetInvite(ctx context.Context, id uuid.UUID) (*model.FamilyInvite, error)
	CreateInvite(ctx context.Context, invite *model.FamilyInvite) error
	UpdateInviteStatus(ctx context.Context, id uuid.UUID, status model.InviteStatus, usedBy *uuid.UUID, usedAt *time.Time) error
	RevokePendingInvites(ctx context.Context) (int64, error)
	// ListPendingInvites orders by created_at ASC, id ASC; cascade revocation
	// trims from the newest end first.
	ListPendingInvites(ctx context.Context) ([]*model.FamilyInvite, error)

	CountAcceptedMembers(ctx context.Context) (int, error)
	CountPendingInvites(ctx context.Context) (int, error)
	// ListMembersNewestFirst orders by joined_at DESC, id DESC; the eviction
	// comparator depends on this exact order.
	ListMembersNewestFirst(ctx context.Context) ([]*model.FamilyMembership, error)
	CreateMembership(ctx context.Context, m *model.FamilyMembership) error
	DeleteMembership(ctx context.Context, id uuid.UUID) error

	GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetMembershipByUser(ctx context.Context, userID uuid.UUID) (*model.FamilyMembership, error)
	GetFamilyByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Family, error)
	ClearAccountEntitlement(ctx context.Context, accountID uuid.UUID) error

	SetMaxMembers(ctx context.Context, maxMembers int) error

	// EmitEvent writes a domain event to the outbox inside this transaction.
	EmitEvent(ctx context.Context, eventType string, payload interface{}) error
}

// FamilyStore is the transactional boundary around families. WithFamilyLock
// acquires an exclusive lock on the family row before fn runs and commits
// only if fn returns nil; any error aborts with no partial writes. Lock-wait
// is bounded and surfaces as a retryable LOCK_TIMEOUT error.
type FamilyStore interface {
	FamilyReader

	WithFamilyLock(ctx context.Context, familyID uuid.UUID, fn func(FamilyTx) error) error

	// EnsureFamily creates the owner's family if absent and returns it.
	EnsureFamily(ctx context.Context, ownerID uuid.UUID, name string, maxMembers int) (*model.Family, error)

	// ExpirePendingInvites flips every pending invite whose window passed
	// before now. Idempotent; safe to run concurrently with itself.
	ExpirePendingInvites(ctx context.Context, now time.Time) (int64, error)
}

// BillingEventRepository is the durable webhook-idempotency ledger.
type BillingEventRepository interface {
	// MarkProcessed records the (transactionID, eventType) pair. Returns
	// false when the pair was already recorded, in which case the caller
	// must skip the event.
	MarkProcessed(ctx context.Context, transactionID, eventType string, at time.Time) (bool, error)
	// Release drops a claim whose event failed to apply, so the gateway's
	// redelivery is not mistaken for a duplicate.
	Release(ctx context.Context, transactionID, eventType string) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// OutboxRepository drains the transactional outbox.
type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// ClaimPending atomically reserves up to limit due events for the
	// caller. Claimed events stay invisible to other drainers until
	// visibility elapses, after which an unfinished claim is retried.
	ClaimPending(ctx context.Context, limit int, visibility time.Duration) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
