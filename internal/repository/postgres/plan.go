package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
	apperrors "github.com/streamhaven/entitlement-api/pkg/errors"
)

type planRepository struct {
	BaseRepository
}

func NewPlanRepository(base BaseRepository) repository.PlanRepository {
	return &planRepository{base}
}

func (r *planRepository) Get(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	query := `
		SELECT id, name, screens, active
		FROM plans
		WHERE id = $1
	`
	var plan model.Plan
	err := r.db.GetContext(ctx, &plan, query, id)
	if isNoRows(err) {
		return nil, apperrors.NotFound("plan")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

func (r *planRepository) ListActive(ctx context.Context) ([]*model.Plan, error) {
	query := `
		SELECT id, name, screens, active
		FROM plans
		WHERE active = true
		ORDER BY screens ASC
	`
	var plans []*model.Plan
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}
