package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

const familyColumns = "id, owner_id, name, max_members, created_at, updated_at"
const inviteColumns = "id, family_id, token, email, status, expires_at, used_by, used_at, created_at"

type familyStore struct {
	BaseRepository
	lockWait time.Duration
}

// NewFamilyStore builds the transactional boundary around families.
// lockWait bounds how long a transaction blocks on the family row before
// failing with a retryable LOCK_TIMEOUT.
func NewFamilyStore(base BaseRepository, lockWait time.Duration) repository.FamilyStore {
	return &familyStore{BaseRepository: base, lockWait: lockWait}
}

func (s *familyStore) WithFamilyLock(ctx context.Context, familyID uuid.UUID, fn func(repository.FamilyTx) error) error {
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		// SET LOCAL does not accept bind parameters; the duration is
		// formatted from a config value, never user input.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockWait.Milliseconds())); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}

		var family model.Family
		err := tx.GetContext(ctx, &family,
			"SELECT "+familyColumns+" FROM families WHERE id = $1 FOR UPDATE", familyID)
		if isNoRows(err) {
			return apperrors.NotFound("family")
		}
		if err != nil {
			return err
		}

		return fn(&familyTx{tx: tx, family: &family})
	})
	return classifyLockErr(err)
}

func (s *familyStore) EnsureFamily(ctx context.Context, ownerID uuid.UUID, name string, maxMembers int) (*model.Family, error) {
	query := `
		INSERT INTO families (id, owner_id, name, max_members, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (owner_id) DO NOTHING
	`
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, uuid.New(), ownerID, name, maxMembers, now); err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	family, err := s.GetFamilyByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if family == nil {
		return nil, fmt.Errorf("family missing after create for owner %s", ownerID)
	}
	return family, nil
}

func (s *familyStore) ExpirePendingInvites(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE family_invites
		SET status = $1
		WHERE status = $2 AND expires_at < $3
	`
	result, err := s.db.ExecContext(ctx, query, model.InviteStatusExpired, model.InviteStatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invites: %w", err)
	}
	return result.RowsAffected()
}

func (s *familyStore) GetFamily(ctx context.Context, id uuid.UUID) (*model.Family, error) {
	var family model.Family
	err := s.db.GetContext(ctx, &family,
		"SELECT "+familyColumns+" FROM families WHERE id = $1", id)
	if isNoRows(err) {
		return nil, apperrors.NotFound("family")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	return &family, nil
}

func (s *familyStore) GetFamilyByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Family, error) {
	var family model.Family
	err := s.db.GetContext(ctx, &family,
		"SELECT "+familyColumns+" FROM families WHERE owner_id = $1", ownerID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family by owner: %w", err)
	}
	return &family, nil
}

func (s *familyStore) GetMembershipByUser(ctx context.Context, userID uuid.UUID) (*model.FamilyMembership, error) {
	var m model.FamilyMembership
	err := s.db.GetContext(ctx, &m,
		"SELECT id, family_id, user_id, joined_at FROM family_memberships WHERE user_id = $1", userID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (s *familyStore) ListMembers(ctx context.Context, familyID uuid.UUID) ([]*model.FamilyMembership, error) {
	var members []*model.FamilyMembership
	err := s.db.SelectContext(ctx, &members, `
		SELECT id, family_id, user_id, joined_at
		FROM family_memberships
		WHERE family_id = $1
		ORDER BY joined_at ASC, id ASC
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (s *familyStore) ListPendingInvites(ctx context.Context, familyID uuid.UUID) ([]*model.FamilyInvite, error) {
	var invites []*model.FamilyInvite
	err := s.db.SelectContext(ctx, &invites,
		"SELECT "+inviteColumns+" FROM family_invites WHERE family_id = $1 AND status = $2 ORDER BY created_at ASC",
		familyID, model.InviteStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invites: %w", err)
	}
	return invites, nil
}

func (s *familyStore) GetInviteByToken(ctx context.Context, token string) (*model.FamilyInvite, error) {
	var invite model.FamilyInvite
	err := s.db.GetContext(ctx, &invite,
		"SELECT "+inviteColumns+" FROM family_invites WHERE token = $1", token)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite by token: %w", err)
	}
	return &invite, nil
}

func (s *familyStore) GetInvite(ctx context.Context, id uuid.UUID) (*model.FamilyInvite, error) {
	var invite model.FamilyInvite
	err := s.db.GetContext(ctx, &invite,
		"SELECT "+inviteColumns+" FROM family_invites WHERE id = $1", id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return &invite, nil
}

// familyTx runs against one locked family row. All queries are scoped to
// that family unless they target the accepting account.
type familyTx struct {
	tx     *sqlx.Tx
	family *model.Family
}

func (t *familyTx) Family() *model.Family {
	return t.family
}

func (t *familyTx) GetInviteByToken(ctx context.Context, token string) (*model.FamilyInvite, error) {
	var invite model.FamilyInvite
	err := t.tx.GetContext(ctx, &invite,
		"SELECT "+inviteColumns+" FROM family_invites WHERE token = $1 AND family_id = $2",
		token, t.family.ID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite by token: %w", err)
	}
	return &invite, nil
}

func (t *familyTx) GetInvite(ctx context.Context, id uuid.UUID) (*model.FamilyInvite, error) {
	var invite model.FamilyInvite
	err := t.tx.GetContext(ctx, &invite,
		"SELECT "+inviteColumns+" FROM family_invites WHERE id = $1 AND family_id = $2",
		id, t.family.ID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return &invite, nil
}

func (t *familyTx) CreateInvite(ctx context.Context, invite *model.FamilyInvite) error {
	query := `
		INSERT INTO family_invites (id, family_id, token, email, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.ExecContext(ctx, query,
		invite.ID,
		t.family.ID,
		invite.Token,
		invite.Email,
		invite.Status,
		invite.ExpiresAt,
		invite.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (t *familyTx) UpdateInviteStatus(ctx context.Context, id uuid.UUID, status model.InviteStatus, usedBy *uuid.UUID, usedAt *time.Time) error {
	query := `
		UPDATE family_invites
		SET status = $1, used_by = $2, used_at = $3
		WHERE id = $4 AND family_id = $5
	`
	result, err := t.tx.ExecContext(ctx, query, status, usedBy, usedAt, id, t.family.ID)
	if err != nil {
		return fmt.Errorf("failed to update invite status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("invite")
	}
	return nil
}

func (t *familyTx) ListPendingInvites(ctx context.Context) ([]*model.FamilyInvite, error) {
	var invites []*model.FamilyInvite
	err := t.tx.SelectContext(ctx, &invites,
		"SELECT "+inviteColumns+" FROM family_invites WHERE family_id = $1 AND status = $2 ORDER BY created_at ASC, id ASC",
		t.family.ID, model.InviteStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invites: %w", err)
	}
	return invites, nil
}

func (t *familyTx) RevokePendingInvites(ctx context.Context) (int64, error) {
	query := `
		UPDATE family_invites
		SET status = $1
		WHERE family_id = $2 AND status = $3
	`
	result, err := t.tx.ExecContext(ctx, query, model.InviteStatusRevoked, t.family.ID, model.InviteStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke pending invites: %w", err)
	}
	return result.RowsAffected()
}

func (t *familyTx) CountAcceptedMembers(ctx context.Context) (int, error) {
	var count int
	err := t.tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM family_memberships WHERE family_id = $1", t.family.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

func (t *familyTx) CountPendingInvites(ctx context.Context) (int, error) {
	var count int
	err := t.tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM family_invites WHERE family_id = $1 AND status = $2",
		t.family.ID, model.InviteStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending invites: %w", err)
	}
	return count, nil
}

func (t *familyTx) ListMembersNewestFirst(ctx context.Context) ([]*model.FamilyMembership, error) {
	var members []*model.FamilyMembership
	err := t.tx.SelectContext(ctx, &members, `
		SELECT id, family_id, user_id, joined_at
		FROM family_memberships
		WHERE family_id = $1
		ORDER BY joined_at DESC, id DESC
	`, t.family.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (t *familyTx) CreateMembership(ctx context.Context, m *model.FamilyMembership) error {
	query := `
		INSERT INTO family_memberships (id, family_id, user_id, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := t.tx.ExecContext(ctx, query, m.ID, t.family.ID, m.UserID, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (t *familyTx) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx,
		"DELETE FROM family_memberships WHERE id = $1 AND family_id = $2", id, t.family.ID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("membership")
	}
	return nil
}

func (t *familyTx) GetAccount(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := t.tx.GetContext(ctx, &account, `
		SELECT id, email, name, plan_id, max_screens, trial_ends_at, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)
	if isNoRows(err) {
		return nil, apperrors.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (t *familyTx) GetMembershipByUser(ctx context.Context, userID uuid.UUID) (*model.FamilyMembership, error) {
	var m model.FamilyMembership
	err := t.tx.GetContext(ctx, &m,
		"SELECT id, family_id, user_id, joined_at FROM family_memberships WHERE user_id = $1", userID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (t *familyTx) GetFamilyByOwner(ctx context.Context, ownerID uuid.UUID) (*model.Family, error) {
	var family model.Family
	err := t.tx.GetContext(ctx, &family,
		"SELECT "+familyColumns+" FROM families WHERE owner_id = $1", ownerID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family by owner: %w", err)
	}
	return &family, nil
}

func (t *familyTx) ClearAccountEntitlement(ctx context.Context, accountID uuid.UUID) error {
	query := `
		UPDATE accounts
		SET plan_id = NULL, max_screens = 1, trial_ends_at = NULL, updated_at = $1
		WHERE id = $2
	`
	if _, err := t.tx.ExecContext(ctx, query, time.Now(), accountID); err != nil {
		return fmt.Errorf("failed to clear account entitlement: %w", err)
	}
	return nil
}

func (t *familyTx) SetMaxMembers(ctx context.Context, maxMembers int) error {
	query := `
		UPDATE families
		SET max_members = $1, updated_at = $2
		WHERE id = $3
	`
	if _, err := t.tx.ExecContext(ctx, query, maxMembers, time.Now(), t.family.ID); err != nil {
		return fmt.Errorf("failed to update family capacity: %w", err)
	}
	t.family.MaxMembers = maxMembers
	return nil
}

func (t *familyTx) EmitEvent(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (id, event_type, payload, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
	`
	if _, err := t.tx.ExecContext(ctx, query, uuid.New(), eventType, payloadJSON, model.OutboxStatusPending, time.Now()); err != nil {
		return fmt.Errorf("failed to write outbox event: %w", err)
	}
	return nil
}
