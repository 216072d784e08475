package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

type accountRepository struct {
	BaseRepository
}

func NewAccountRepository(base BaseRepository) repository.AccountRepository {
	return &accountRepository{base}
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	query := `
		SELECT id, email, name, plan_id, max_screens, trial_ends_at, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	var account model.Account
	err := r.db.GetContext(ctx, &account, query, id)
	if isNoRows(err) {
		return nil, apperrors.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `
		SELECT id, email, name, plan_id, max_screens, trial_ends_at, created_at, updated_at
		FROM accounts
		WHERE lower(email) = lower($1)
	`
	var account model.Account
	err := r.db.GetContext(ctx, &account, query, email)
	if isNoRows(err) {
		return nil, apperrors.NotFound("account")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) SetPlan(ctx context.Context, id uuid.UUID, planID *uuid.UUID, maxScreens int) error {
	query := `
		UPDATE accounts
		SET plan_id = $1, max_screens = $2, trial_ends_at = NULL, updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, planID, maxScreens, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set account plan: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("account")
	}

	return nil
}

func (r *accountRepository) SetTrial(ctx context.Context, id uuid.UUID, trialEndsAt *time.Time) error {
	query := `
		UPDATE accounts
		SET trial_ends_at = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, trialEndsAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set account trial: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("account")
	}

	return nil
}
