package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository/memory"
	billingService "github.com/streamhaven/entitlement-api/internal/service/billing"
	familyService "github.com/streamhaven/entitlement-api/internal/service/family"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/token"
	"github.com/streamhaven/entitlement-api/pkg/validator"
)

const testSecret = "hook-secret"

func setup(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewStore(time.Second)
	clk := &clock.Fixed{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	log := logger.NewLogger(nil)
	familySvc := familyService.NewService(store, store.Accounts(), validator.New(), token.NewGenerator(), clk, log, nil)
	svc := billingService.NewService(store.Billing(), store.Accounts(), store.Plans(), familySvc, clk, log)

	engine := gin.New()
	NewHandler(svc, testSecret).RegisterRoutes(engine.Group(""))
	return engine, store
}

func postEvent(t *testing.T, engine *gin.Engine, secret string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", &buf)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	engine, _ := setup(t)

	rec := postEvent(t, engine, "wrong", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postEvent(t, engine, "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsMissingFields(t *testing.T) {
	engine, _ := setup(t)

	rec := postEvent(t, engine, testSecret, gin.H{"event_type": model.PaymentEventSucceeded})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAppliesPlanGrant(t *testing.T) {
	engine, store := setup(t)

	plan := &model.Plan{ID: uuid.New(), Name: "Premium", Screens: 4, Active: true}
	store.PutPlan(plan)
	acct := &model.Account{Base: model.Base{ID: uuid.New()}, Email: "o@example.com", MaxScreens: 1}
	store.PutAccount(acct)

	body := gin.H{
		"transaction_id": "txn-1",
		"event_type":     model.PaymentEventSucceeded,
		"account_id":     acct.ID,
		"plan_id":        plan.ID,
	}
	rec := postEvent(t, engine, testSecret, body)
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := store.Accounts().Get(context.Background(), acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PlanID)
	assert.Equal(t, 4, got.MaxScreens)

	// Redelivery answers OK without reapplying.
	rec = postEvent(t, engine, testSecret, body)
	assert.Equal(t, http.StatusOK, rec.Code)
}
