package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEvent is delivered by the payment gateway webhook. TransactionID
// plus EventType form the idempotency key: duplicate deliveries must not
// double-apply.
type PaymentEvent struct {
	TransactionID string     `json:"transaction_id" binding:"required"`
	EventType     string     `json:"event_type" binding:"required"`
	AccountID     uuid.UUID  `json:"account_id" binding:"required"`
	PlanID        *uuid.UUID `json:"plan_id"`
	Screens       int        `json:"screens"`
	TrialEndsAt   *time.Time `json:"trial_ends_at"`
}

const (
	PaymentEventSucceeded    = "payment.succeeded"
	PaymentEventPlanChanged  = "subscription.plan_changed"
	PaymentEventCancelled    = "subscription.cancelled"
	PaymentEventTrialStarted = "subscription.trial_started"
)

// BillingEventRecord is a row in the durable idempotency ledger. Rows past
// the retention window are removed by the cleanup worker.
type BillingEventRecord struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	EventType     string    `json:"event_type" db:"event_type"`
	ProcessedAt   time.Time `json:"processed_at" db:"processed_at"`
}
