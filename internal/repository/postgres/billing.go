package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/streamhaven/entitlement-api/internal/repository"
)

type billingEventRepository struct {
	BaseRepository
}

func NewBillingEventRepository(base BaseRepository) repository.BillingEventRepository {
	return &billingEventRepository{base}
}

// MarkProcessed claims the (transaction, event type) pair. The primary key
// makes the claim race-free across instances: exactly one caller sees true.
func (r *billingEventRepository) MarkProcessed(ctx context.Context, transactionID, eventType string, at time.Time) (bool, error) {
	query := `
		INSERT INTO billing_events (transaction_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id, event_type) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, transactionID, eventType, at)
	if err != nil {
		return false, fmt.Errorf("failed to record billing event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *billingEventRepository) Release(ctx context.Context, transactionID, eventType string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM billing_events WHERE transaction_id = $1 AND event_type = $2",
		transactionID, eventType)
	if err != nil {
		return fmt.Errorf("failed to release billing event claim: %w", err)
	}
	return nil
}

func (r *billingEventRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM billing_events WHERE processed_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete billing events: %w", err)
	}
	return result.RowsAffected()
}
