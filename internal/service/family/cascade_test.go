package family

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhaven/entitlement-api/internal/model"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

func TestOnOwnerPlanChanged(t *testing.T) {
	t.Run("no family is a no-op", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 1))
	})

	t.Run("downgrade evicts newest members first", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		first := f.seedMember(fam.ID, "first@example.com", testTime.Add(-3*time.Hour))
		second := f.seedMember(fam.ID, "second@example.com", testTime.Add(-2*time.Hour))
		third := f.seedMember(fam.ID, "third@example.com", testTime.Add(-1*time.Hour))

		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 3))

		members, err := f.store.ListMembers(context.Background(), fam.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		survivors := []uuid.UUID{members[0].UserID, members[1].UserID}
		assert.Contains(t, survivors, first.ID)
		assert.Contains(t, survivors, second.ID)
		assert.NotContains(t, survivors, third.ID)

		got, err := f.store.GetFamily(context.Background(), fam.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.MaxMembers)
	})

	t.Run("downgrade to solo clears all members", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		f.seedMember(fam.ID, "m1@example.com", testTime.Add(-2*time.Hour))
		f.seedMember(fam.ID, "m2@example.com", testTime.Add(-time.Hour))

		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 1))

		members, err := f.store.ListMembers(context.Background(), fam.ID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("downgrade revokes invites that no longer fit, newest first", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(5)
		fam := f.seedFamily(owner.ID, 5)
		f.seedMember(fam.ID, "m1@example.com", testTime.Add(-time.Hour))
		oldInv := f.seedInvite(fam.ID, nil, testTime.Add(-30*time.Minute))
		newInv := f.seedInvite(fam.ID, nil, testTime.Add(-10*time.Minute))

		// 3 seats: owner + one member + one invite fit; the newer invite does not.
		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 3))

		got, err := f.store.GetInvite(context.Background(), oldInv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InviteStatusPending, got.Status)

		got, err = f.store.GetInvite(context.Background(), newInv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InviteStatusRevoked, got.Status)
	})

	t.Run("downgrade with no free seats revokes every pending invite", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		f.seedMember(fam.ID, "m1@example.com", testTime.Add(-time.Hour))
		invA := f.seedInvite(fam.ID, nil, testTime.Add(-30*time.Minute))
		invB := f.seedInvite(fam.ID, nil, testTime.Add(-10*time.Minute))

		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 2))

		for _, id := range []uuid.UUID{invA.ID, invB.ID} {
			got, err := f.store.GetInvite(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, model.InviteStatusRevoked, got.Status)
		}
	})

	t.Run("capacity of zero evicts everyone without panicking", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		f.seedMember(fam.ID, "m1@example.com", testTime.Add(-time.Hour))

		// The owner's non-evictable seat already exceeds a zero capacity;
		// the eviction cut must not run past the member list.
		assert.NotPanics(t, func() {
			require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 0))
		})

		members, err := f.store.ListMembers(context.Background(), fam.ID)
		require.NoError(t, err)
		assert.Empty(t, members)

		got, err := f.store.GetFamily(context.Background(), fam.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.MaxMembers)
	})

	t.Run("upgrade opens seats without touching members", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(2)
		fam := f.seedFamily(owner.ID, 2)
		f.seedMember(fam.ID, "m1@example.com", testTime)

		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 5))

		got, err := f.store.GetFamily(context.Background(), fam.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, got.MaxMembers)

		members, err := f.store.ListMembers(context.Background(), fam.ID)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})

	t.Run("eviction emits one event per member plus resize events", func(t *testing.T) {
		f := newFixture(t)
		owner := f.seedOwner(4)
		fam := f.seedFamily(owner.ID, 4)
		f.seedMember(fam.ID, "m1@example.com", testTime.Add(-2*time.Hour))
		f.seedMember(fam.ID, "m2@example.com", testTime.Add(-time.Hour))

		require.NoError(t, f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 1))

		var evicted, planChanged int
		for _, e := range f.store.Events() {
			switch e.EventType {
			case model.EventMemberEvicted:
				evicted++
			case model.EventPlanChanged:
				planChanged++
			}
		}
		assert.Equal(t, 2, evicted)
		assert.Equal(t, 1, planChanged)
	})
}

// A downgrade and an acceptance racing on one family must serialize on the
// family lock: whichever order they land in, the seat invariant holds and
// the original member keeps their seat.
func TestCascadeAndAcceptAreSerialized(t *testing.T) {
	f := newFixture(t)
	owner := f.seedOwner(4)
	fam := f.seedFamily(owner.ID, 4)
	kept := f.seedMember(fam.ID, "kept@example.com", testTime.Add(-2*time.Hour))
	inv := f.seedInvite(fam.ID, nil, testTime.Add(-time.Hour))
	joiner := f.seedJoiner("joiner@example.com")

	var wg sync.WaitGroup
	var cascadeErr, acceptErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		cascadeErr = f.svc.OnOwnerPlanChanged(context.Background(), owner.ID, 2)
	}()
	go func() {
		defer wg.Done()
		acceptErr = f.svc.AcceptInvite(context.Background(), inv.Token, joiner.ID)
	}()
	wg.Wait()

	require.NoError(t, cascadeErr)

	// Accept-first: the joiner got in and the cascade evicted them as the
	// newest member. Cascade-first: the invite was revoked and the accept
	// failed. Either way the surviving state is identical.
	if acceptErr != nil {
		assert.Equal(t, apperrors.CodeInviteNotPending, apperrors.CodeOf(acceptErr))
	}

	members, err := f.store.ListMembers(context.Background(), fam.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, kept.ID, members[0].UserID)

	got, err := f.store.GetFamily(context.Background(), fam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxMembers)

	gotInv, err := f.store.GetInvite(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.NotEqual(t, model.InviteStatusPending, gotInv.Status)

	membership, err := f.store.GetMembershipByUser(context.Background(), joiner.ID)
	require.NoError(t, err)
	assert.Nil(t, membership)
}
