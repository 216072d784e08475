// Package memory implements the repository interfaces against in-process
// maps, with a per-family lock that mirrors the Postgres row lock. It backs
// deterministic service and handler tests, including the concurrency ones.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

type Store struct {
	mu       sync.Mutex
	locks    map[uuid.UUID]chan struct{}
	lockWait time.Duration

	accounts    map[uuid.UUID]*model.Account
	plans       map[uuid.UUID]*model.Plan
	families    map[uuid.UUID]*model.Family
	memberships map[uuid.UUID]*model.FamilyMembership
	invites     map[uuid.UUID]*model.FamilyInvite
	events      []*model.OutboxEvent
	billing     map[string]time.Time
}

func NewStore(lockWait time.Duration) *Store {
	return &Store{
		locks:       make(map[uuid.UUID]chan struct{}),
		lockWait:    lockWait,
		accounts:    make(map[uuid.UUID]*model.Account),
		plans:       make(map[uuid.UUID]*model.Plan),
		families:    make(map[uuid.UUID]*model.Family),
		memberships: make(map[uuid.UUID]*model.FamilyMembership),
		invites:     make(map[uuid.UUID]*model.FamilyInvite),
		billing:     make(map[string]time.Time),
	}
}

// --- seeding and inspection helpers for tests ---

func (s *Store) PutAccount(a *model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = copyAccount(a)
}

func (s *Store) PutPlan(p *model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.plans[p.ID] = &cp
}

func (s *Store) PutFamily(f *model.Family) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.families[f.ID] = &cp
}

func (s *Store) PutMembership(m *model.FamilyMembership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.memberships[m.ID] = &cp
}

func (s *Store) PutInvite(i *model.FamilyInvite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[i.ID] = copyInvite(i)
}

func (s *Store) Events() []*model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.OutboxEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Accounts returns the AccountRepository view of the store.
func (s *Store) Accounts() repository.AccountRepository { return accountRepo{s} }

// Plans returns the PlanRepository view of the store.
func (s *Store) Plans() repository.PlanRepository { return planRepo{s} }

// Billing returns the BillingEventRepository view of the store.
func (s *Store) Billing() repository.BillingEventRepository { return billingRepo{s} }

// Outbox returns the OutboxRepository view of the store.
func (s *Store) Outbox() repository.OutboxRepository { return outboxRepo{s} }

// --- AccountRepository ---

type accountRepo struct{ s *Store }

func (r accountRepo) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account")
	}
	return copyAccount(a), nil
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if strings.EqualFold(a.Email, email) {
			return copyAccount(a), nil
		}
	}
	return nil, apperrors.NotFound("account")
}

func (r accountRepo) SetPlan(ctx context.Context, id uuid.UUID, planID *uuid.UUID, maxScreens int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return apperrors.NotFound("account")
	}
	a.PlanID = copyUUIDPtr(planID)
	a.MaxScreens = maxScreens
	a.TrialEndsAt = nil
	return nil
}

func (r accountRepo) SetTrial(ctx context.Context, id uuid.UUID, trialEndsAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return apperrors.NotFound("account")
	}
	a.TrialEndsAt = copyTimePtr(trialEndsAt)
	return nil
}

// --- PlanRepository ---

type planRepo struct{ s *Store }

func (r planRepo) Get(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, apperrors.NotFound("plan")
	}
	cp := *p
	return &cp, nil
}

func (r planRepo) ListActive(ctx context.Context) ([]*model.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Plan
	for _, p := range r.s.plans {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Screens < out[j].Screens })
	return out, nil
}

// --- FamilyReader ---

func (s *Store) GetFamily(ctx context.Context, id uuid.UUID) (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[id]
	if !ok {
		return nil, apperrors.NotFound("family")
	}
	cp := *f
	return &cp, nil
}

func (s *Store) GetFamilyByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.familyByOwnerLocked(ownerID), nil
}

func (s *Store) familyByOwnerLocked(ownerID uuid.UUID) *model.Family {
	for _, f := range s.families {
		if f.OwnerID == ownerID {
			cp := *f
			return &cp
		}
	}
	return nil
}

func (s *Store) GetMembershipByUser(ctx context.Context, userID uuid.UUID) (*model.FamilyMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.membershipByUserLocked(userID), nil
}

func (s *Store) membershipByUserLocked(userID uuid.UUID) *model.FamilyMembership {
	for _, m := range s.memberships {
		if m.UserID == userID {
			cp := *m
			return &cp
		}
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, familyID uuid.UUID) ([]*model.FamilyMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.membersLocked(familyID)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) membersLocked(familyID uuid.UUID) []*model.FamilyMembership {
	var out []*model.FamilyMembership
	for _, m := range s.memberships {
		if m.FamilyID == familyID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) ListPendingInvites(ctx context.Context, familyID uuid.UUID) ([]*model.FamilyInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.FamilyInvite
	for _, i := range s.invites {
		if i.FamilyID == familyID && i.Status == model.InviteStatusPending {
			out = append(out, copyInvite(i))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetInviteByToken(ctx context.Context, token string) (*model.FamilyInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.invites {
		if i.Token == token {
			return copyInvite(i), nil
		}
	}
	return nil, nil
}

func (s *Store) GetInvite(ctx context.Context, id uuid.UUID) (*model.FamilyInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.invites[id]
	if !ok {
		return nil, nil
	}
	return copyInvite(i), nil
}

// --- FamilyStore ---

func (s *Store) familyLock(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}
	return l
}

func (s *Store) WithFamilyLock(ctx context.Context, familyID uuid.UUID, fn func(repository.FamilyTx) error) error {
	lock := s.familyLock(familyID)

	select {
	case lock <- struct{}{}:
	case <-time.After(s.lockWait):
		return apperrors.LockTimeout(fmt.Errorf("family %s lock wait exceeded", familyID))
	case <-ctx.Done():
		return apperrors.LockTimeout(ctx.Err())
	}
	defer func() { <-lock }()

	s.mu.Lock()
	f, ok := s.families[familyID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("family")
	}
	snapshot := s.snapshotLocked()
	famCopy := *f
	s.mu.Unlock()

	if err := fn(&memTx{store: s, family: &famCopy}); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) EnsureFamily(ctx context.Context, ownerID uuid.UUID, name string, maxMembers int) (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.familyByOwnerLocked(ownerID); f != nil {
		return f, nil
	}
	now := time.Now()
	f := &model.Family{
		Base:       model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		OwnerID:    ownerID,
		Name:       name,
		MaxMembers: maxMembers,
	}
	s.families[f.ID] = f
	cp := *f
	return &cp, nil
}

func (s *Store) ExpirePendingInvites(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, i := range s.invites {
		if i.Status == model.InviteStatusPending && now.After(i.ExpiresAt) {
			i.Status = model.InviteStatusExpired
			n++
		}
	}
	return n, nil
}

// --- BillingEventRepository ---

type billingRepo struct{ s *Store }

func (r billingRepo) MarkProcessed(ctx context.Context, transactionID, eventType string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := transactionID + "|" + eventType
	if _, ok := r.s.billing[key]; ok {
		return false, nil
	}
	r.s.billing[key] = at
	return true, nil
}

func (r billingRepo) Release(ctx context.Context, transactionID, eventType string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.billing, transactionID+"|"+eventType)
	return nil
}

func (r billingRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, at := range r.s.billing {
		if at.Before(before) {
			delete(r.s.billing, k)
			n++
		}
	}
	return n, nil
}

// --- OutboxRepository ---

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *event
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.Status = model.OutboxStatusPending
	r.s.events = append(r.s.events, &cp)
	return nil
}

func (r outboxRepo) ClaimPending(ctx context.Context, limit int, visibility time.Duration) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	var out []*model.OutboxEvent
	for _, e := range r.s.events {
		if e.Status != model.OutboxStatusPending {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		claimUntil := now.Add(visibility)
		e.RetryAt = &claimUntil
		cp := *e
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if e.ID == id {
			now := time.Now()
			e.Status = model.OutboxStatusProcessed
			e.ProcessedAt = &now
			return nil
		}
	}
	return apperrors.NotFound("outbox event")
}

func (r outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if e.ID == id {
			e.Status = model.OutboxStatusFailed
			if retryAt != nil {
				e.Status = model.OutboxStatusPending
			}
			e.ErrorMessage = &errMsg
			e.RetryCount++
			e.RetryAt = copyTimePtr(retryAt)
			return nil
		}
	}
	return apperrors.NotFound("outbox event")
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var kept []*model.OutboxEvent
	var n int64
	for _, e := range r.s.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.s.events = kept
	return n, nil
}

// --- snapshots ---

type snapshot struct {
	accounts    map[uuid.UUID]*model.Account
	families    map[uuid.UUID]*model.Family
	memberships map[uuid.UUID]*model.FamilyMembership
	invites     map[uuid.UUID]*model.FamilyInvite
	events      []*model.OutboxEvent
}

func (s *Store) snapshotLocked() *snapshot {
	snap := &snapshot{
		accounts:    make(map[uuid.UUID]*model.Account, len(s.accounts)),
		families:    make(map[uuid.UUID]*model.Family, len(s.families)),
		memberships: make(map[uuid.UUID]*model.FamilyMembership, len(s.memberships)),
		invites:     make(map[uuid.UUID]*model.FamilyInvite, len(s.invites)),
		events:      make([]*model.OutboxEvent, len(s.events)),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = copyAccount(v)
	}
	for k, v := range s.families {
		cp := *v
		snap.families[k] = &cp
	}
	for k, v := range s.memberships {
		cp := *v
		snap.memberships[k] = &cp
	}
	for k, v := range s.invites {
		snap.invites[k] = copyInvite(v)
	}
	copy(snap.events, s.events)
	return snap
}

func (s *Store) restoreLocked(snap *snapshot) {
	s.accounts = snap.accounts
	s.families = snap.families
	s.memberships = snap.memberships
	s.invites = snap.invites
	s.events = snap.events
}

// --- memTx ---

type memTx struct {
	store  *Store
	family *model.Family
}

func (t *memTx) Family() *model.Family { return t.family }

func (t *memTx) GetInviteByToken(ctx context.Context, token string) (*model.FamilyInvite, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, i := range t.store.invites {
		if i.Token == token && i.FamilyID == t.family.ID {
			return copyInvite(i), nil
		}
	}
	return nil, nil
}

func (t *memTx) GetInvite(ctx context.Context, id uuid.UUID) (*model.FamilyInvite, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	i, ok := t.store.invites[id]
	if !ok || i.FamilyID != t.family.ID {
		return nil, nil
	}
	return copyInvite(i), nil
}

func (t *memTx) CreateInvite(ctx context.Context, invite *model.FamilyInvite) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := copyInvite(invite)
	cp.FamilyID = t.family.ID
	t.store.invites[cp.ID] = cp
	return nil
}

func (t *memTx) UpdateInviteStatus(ctx context.Context, id uuid.UUID, status model.InviteStatus, usedBy *uuid.UUID, usedAt *time.Time) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	i, ok := t.store.invites[id]
	if !ok || i.FamilyID != t.family.ID {
		return apperrors.NotFound("invite")
	}
	i.Status = status
	i.UsedBy = copyUUIDPtr(usedBy)
	i.UsedAt = copyTimePtr(usedAt)
	return nil
}

func (t *memTx) ListPendingInvites(ctx context.Context) ([]*model.FamilyInvite, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []*model.FamilyInvite
	for _, i := range t.store.invites {
		if i.FamilyID == t.family.ID && i.Status == model.InviteStatusPending {
			out = append(out, copyInvite(i))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *memTx) RevokePendingInvites(ctx context.Context) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var n int64
	for _, i := range t.store.invites {
		if i.FamilyID == t.family.ID && i.Status == model.InviteStatusPending {
			i.Status = model.InviteStatusRevoked
			n++
		}
	}
	return n, nil
}

func (t *memTx) CountAcceptedMembers(ctx context.Context) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return len(t.store.membersLocked(t.family.ID)), nil
}

func (t *memTx) CountPendingInvites(ctx context.Context) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	n := 0
	for _, i := range t.store.invites {
		if i.FamilyID == t.family.ID && i.Status == model.InviteStatusPending {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ListMembersNewestFirst(ctx context.Context) ([]*model.FamilyMembership, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	out := t.store.membersLocked(t.family.ID)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.After(out[j].JoinedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (t *memTx) CreateMembership(ctx context.Context, m *model.FamilyMembership) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	cp := *m
	cp.FamilyID = t.family.ID
	t.store.memberships[cp.ID] = &cp
	return nil
}

func (t *memTx) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	m, ok := t.store.memberships[id]
	if !ok || m.FamilyID != t.family.ID {
		return apperrors.NotFound("membership")
	}
	delete(t.store.memberships, id)
	return nil
}

func (t *memTx) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return t.store.Accounts().Get(ctx, id)
}

func (t *memTx) GetMembershipByUser(ctx context.Context, userID uuid.UUID) (*model.FamilyMembership, error) {
	return t.store.GetMembershipByUser(ctx, userID)
}

func (t *memTx) GetFamilyByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Family, error) {
	return t.store.GetFamilyByOwner(ctx, ownerID)
}

func (t *memTx) ClearAccountEntitlement(ctx context.Context, accountID uuid.UUID) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a, ok := t.store.accounts[accountID]
	if !ok {
		return apperrors.NotFound("account")
	}
	a.PlanID = nil
	a.MaxScreens = 1
	a.TrialEndsAt = nil
	return nil
}

func (t *memTx) SetMaxMembers(ctx context.Context, maxMembers int) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	f, ok := t.store.families[t.family.ID]
	if !ok {
		return apperrors.NotFound("family")
	}
	f.MaxMembers = maxMembers
	t.family.MaxMembers = maxMembers
	return nil
}

func (t *memTx) EmitEvent(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	now := time.Now()
	t.store.events = append(t.store.events, &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return nil
}

// --- copy helpers ---

func copyAccount(a *model.Account) *model.Account {
	cp := *a
	cp.PlanID = copyUUIDPtr(a.PlanID)
	cp.TrialEndsAt = copyTimePtr(a.TrialEndsAt)
	return &cp
}

func copyInvite(i *model.FamilyInvite) *model.FamilyInvite {
	cp := *i
	if i.Email != nil {
		e := *i.Email
		cp.Email = &e
	}
	cp.UsedBy = copyUUIDPtr(i.UsedBy)
	cp.UsedAt = copyTimePtr(i.UsedAt)
	return &cp
}

func copyUUIDPtr(u *uuid.UUID) *uuid.UUID {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

