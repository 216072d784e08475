package family

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository/memory"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/token"
	"github.com/streamhaven/entitlement-api/pkg/validator"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *clock.Fixed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(500 * time.Millisecond)
	clk := &clock.Fixed{T: testTime}
	svc := NewService(store, store.Accounts(), validator.New(), token.NewGenerator(), clk, logger.NewLogger(nil), nil)
	return &fixture{svc: svc, store: store, clock: clk}
}

func (f *fixture) seedOwner(screens int) *model.Account {
	planID := uuid.New()
	owner := &model.Account{
		Base:       model.Base{ID: uuid.New()},
		Email:      "owner@example.com",
		Name:       "Owner",
		PlanID:     &planID,
		MaxScreens: screens,
	}
	f.store.PutAccount(owner)
	return owner
}

func (f *fixture) seedFamily(ownerID uuid.UUID, maxMembers int) *model.Family {
	fam := &model.Family{
		Base:       model.Base{ID: uuid.New()},
		OwnerID:    ownerID,
		Name:       "Owner",
		MaxMembers: maxMembers,
	}
	f.store.PutFamily(fam)
	return fam
}

func (f *fixture) seedMember(familyID uuid.UUID, email string, joinedAt time.Time) *model.Account {
	acct := &model.Account{
		Base:       model.Base{ID: uuid.New()},
		Email:      email,
		MaxScreens: 1,
	}
	f.store.PutAccount(acct)
	f.store.PutMembership(&model.FamilyMembership{
		ID:       uuid.New(),
		FamilyID: familyID,
		UserID:   acct.ID,
		JoinedAt: joinedAt,
	})
	return acct
}

func (f *fixture) seedInvite(familyID uuid.UUID, email *string, createdAt time.Time) *model.FamilyInvite {
	inv := &model.FamilyInvite{
		ID:        uuid.New(),
		FamilyID:  familyID,
		Token:     uuid.New().String(),
		Email:     email,
		Status:    model.InviteStatusPending,
		ExpiresAt: createdAt.Add(model.InviteTTL),
		CreatedAt: createdAt,
	}
	f.store.PutInvite(inv)
	return inv
}

func strPtr(s string) *string { return &s }

func TestCreateInvite(t *testing.T) {
	t.Run("creates family and pending invite", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)

		invite, err := f.svc.CreateInvite(context.Background(), owner.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, model.InviteStatusPending, invite.Status)
		assert.NotEmpty(t, invite.Token)
		assert.Equal(t, testTime.Add(model.InviteTTL), invite.ExpiresAt)

		fam, err := f.store.GetFamilyByOwner(context.Background(), owner.ID)
		require.NoError(t, err)
		require.NotNil(t, fam)
		assert.Equal(t, 4, fam.MaxMembers)
	})

	t.Run("rejects single screen plan", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(1)

		_, err := f.svc.CreateInvite(context.Background(), owner.ID, nil)
		assert.Equal(t, apperrors.CodePlanTooSmall, apperrors.CodeOf(err))
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)

		_, err := f.svc.CreateInvite(context.Background(), owner.ID, strPtr("not-an-email"))
		assert.Equal(t, apperrors.CodeBadRequest, apperrors.CodeOf(err))
	})

	t.Run("rejects the owner's own email", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)

		_, err := f.svc.CreateInvite(context.Background(), owner.ID, strPtr("OWNER@example.com"))
		assert.Equal(t, apperrors.CodeBadRequest, apperrors.CodeOf(err))
	})

	t.Run("rejects emails of accounts already in a family", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		otherOwner := &model.Account{Base: model.Base{ID: uuid.New()}, Email: "other@example.com", MaxScreens: 4}
		f.store.PutAccount(otherOwner)
		otherFam := f.seedFamily(otherOwner.ID, 4)
		f.seedMember(otherFam.ID, "taken@example.com", testTime)

		_, err := f.svc.CreateInvite(context.Background(), owner.ID, strPtr("taken@example.com"))
		assert.Equal(t, apperrors.CodeMemberOfOtherFamily, apperrors.CodeOf(err))
	})

	t.Run("rejects when pool is exhausted", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		f.seedMember(fam.ID, "m1@example.com", testTime)
		f.seedMember(fam.ID, "m2@example.com", testTime)
		f.seedInvite(fam.ID, nil, testTime)

		_, err := f.svc.CreateInvite(context.Background(), owner.ID, nil)
		assert.Equal(t, apperrors.CodeNoCapacity, apperrors.CodeOf(err))
	})

	t.Run("rejects past the pending cap", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(10)
		fam := f.seedFamily(owner.ID, 10)
		for i := 0; i < model.MaxPendingInvitesPerFamily; i++ {
			f.seedInvite(fam.ID, nil, testTime.Add(time.Duration(i)*time.Minute))
		}

		_, err := f.svc.CreateInvite(context.Background(), owner.ID, nil)
		assert.Equal(t, apperrors.CodeTooManyPending, apperrors.CodeOf(err))
	})
}

func TestRevokeInvite(t *testing.T) {
	t.Run("owner revokes pending invite", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		inv := f.seedInvite(fam.ID, nil, testTime)

		require.NoError(t, f.svc.RevokeInvite(context.Background(), inv.ID, owner.ID))

		got, err := f.store.GetInvite(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InviteStatusRevoked, got.Status)
	})

	t.Run("non-owner cannot revoke", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		inv := f.seedInvite(fam.ID, nil, testTime)

		err := f.svc.RevokeInvite(context.Background(), inv.ID, uuid.New())
		assert.Equal(t, apperrors.CodeNotOwner, apperrors.CodeOf(err))
	})

	t.Run("revoking twice fails", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		inv := f.seedInvite(fam.ID, nil, testTime)

		require.NoError(t, f.svc.RevokeInvite(context.Background(), inv.ID, owner.ID))
		err := f.svc.RevokeInvite(context.Background(), inv.ID, owner.ID)
		assert.Equal(t, apperrors.CodeInviteNotPending, apperrors.CodeOf(err))
	})

	t.Run("unknown invite", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		f.seedFamily(owner.ID, 4)

		err := f.svc.RevokeInvite(context.Background(), uuid.New(), owner.ID)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	})
}

func TestLeaveFamily(t *testing.T) {
	t.Run("member leaves and loses nothing it had", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		member := f.seedMember(fam.ID, "m1@example.com", testTime)

		require.NoError(t, f.svc.LeaveFamily(context.Background(), member.ID))

		m, err := f.store.GetMembershipByUser(context.Background(), member.ID)
		require.NoError(t, err)
		assert.Nil(t, m)

		events := f.store.Events()
		require.Len(t, events, 1)
		assert.Equal(t, model.EventMemberLeft, events[0].EventType)
	})

	t.Run("non-member cannot leave", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.LeaveFamily(context.Background(), uuid.New())
		assert.Equal(t, apperrors.CodeNotMember, apperrors.CodeOf(err))
	})
}

func TestRemoveMember(t *testing.T) {
	t.Run("owner removes a member", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		member := f.seedMember(fam.ID, "m1@example.com", testTime)

		require.NoError(t, f.svc.RemoveMember(context.Background(), owner.ID, member.ID))

		m, err := f.store.GetMembershipByUser(context.Background(), member.ID)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("removing a stranger fails", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		f.seedFamily(owner.ID, 4)

		err := f.svc.RemoveMember(context.Background(), owner.ID, uuid.New())
		assert.Equal(t, apperrors.CodeNotMember, apperrors.CodeOf(err))
	})
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	owner := f.seedOwner(4)
	fam := f.seedFamily(owner.ID, 4)
	f.seedMember(fam.ID, "m1@example.com", testTime.Add(-time.Hour))
	f.seedMember(fam.ID, "m2@example.com", testTime)
	f.seedInvite(fam.ID, nil, testTime)

	overview, err := f.svc.Overview(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Len(t, overview.Members, 2)
	assert.Len(t, overview.PendingInvites, 1)
	// 4 seats minus owner, two members, one reserved by the invite.
	assert.Equal(t, 0, overview.AvailableSlots)
}

func TestExpirePendingInvites(t *testing.T) {
	f := newFixture(t)
	owner := f.seedOwner(4)
	fam := f.seedFamily(owner.ID, 4)
	stale := f.seedInvite(fam.ID, nil, testTime.Add(-model.InviteTTL-time.Hour))
	fresh := f.seedInvite(fam.ID, nil, testTime)

	n, err := f.svc.ExpirePendingInvites(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.store.GetInvite(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InviteStatusExpired, got.Status)

	got, err = f.store.GetInvite(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InviteStatusPending, got.Status)

	// Sweeping again finds nothing new.
	n, err = f.svc.ExpirePendingInvites(context.Background(), f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
