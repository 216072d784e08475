package family

import (
	"bytes"
	"encoding/json"
	"fmt"
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
	familyService "github.com/streamhaven/entitlement-api/internal/service/family"
	"github.com/streamhaven/entitlement-api/pkg/clock"
	"github.com/streamhaven/entitlement-api/pkg/logger"
	"github.com/streamhaven/entitlement-api/pkg/token"
	"github.com/streamhaven/entitlement-api/pkg/validator"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// identityAs injects the account identity the way the auth middleware does.
func identityAs(accountID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("account_id", accountID)
		c.Next()
	}
}

func setupRouter(t *testing.T, store *memory.Store, accountID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := familyService.NewService(store, store.Accounts(), validator.New(), token.NewGenerator(), &clock.Fixed{T: testTime}, logger.NewLogger(nil), nil)

	engine := gin.New()
	group := engine.Group("/api/v1")
	group.Use(identityAs(accountID))
	NewHandler(svc).RegisterRoutes(group)
	return engine
}

func seedOwner(store *memory.Store, screens int) *model.Account {
	planID := uuid.New()
	owner := &model.Account{
		Base:       model.Base{ID: uuid.New()},
		Email:      "owner@example.com",
		PlanID:     &planID,
		MaxScreens: screens,
	}
	store.PutAccount(owner)
	return owner
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestCreateInviteEndpoint(t *testing.T) {
	store := memory.NewStore(time.Second)
	owner := seedOwner(store, 4)
	engine := setupRouter(t, store, owner.ID)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/family/invites", gin.H{})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Status string             `json:"status"`
		Data   model.FamilyInvite `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, model.InviteStatusPending, resp.Data.Status)
	assert.NotEmpty(t, resp.Data.Token)
}

func TestCreateInviteEndpointRejectsBadEmail(t *testing.T) {
	store := memory.NewStore(time.Second)
	owner := seedOwner(store, 4)
	engine := setupRouter(t, store, owner.ID)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/family/invites", gin.H{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptInviteEndpointConflictMapping(t *testing.T) {
	store := memory.NewStore(time.Second)
	owner := seedOwner(store, 2)
	fam := &model.Family{Base: model.Base{ID: uuid.New()}, OwnerID: owner.ID, MaxMembers: 2}
	store.PutFamily(fam)

	// One member already holds the only free seat.
	occupant := &model.Account{Base: model.Base{ID: uuid.New()}, Email: "m@example.com", MaxScreens: 1}
	store.PutAccount(occupant)
	store.PutMembership(&model.FamilyMembership{
		ID: uuid.New(), FamilyID: fam.ID, UserID: occupant.ID, JoinedAt: testTime,
	})

	inv := &model.FamilyInvite{
		ID:        uuid.New(),
		FamilyID:  fam.ID,
		Token:     "tok-full",
		Status:    model.InviteStatusPending,
		ExpiresAt: testTime.Add(model.InviteTTL),
		CreatedAt: testTime,
	}
	store.PutInvite(inv)

	joiner := &model.Account{Base: model.Base{ID: uuid.New()}, Email: "late@example.com", MaxScreens: 1}
	store.PutAccount(joiner)
	engine := setupRouter(t, store, joiner.ID)

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/family/invites/accept", gin.H{"token": "tok-full"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FAMILY_FULL", resp.Code)
}

func TestAcceptInviteEndpointRequiresToken(t *testing.T) {
	store := memory.NewStore(time.Second)
	engine := setupRouter(t, store, uuid.New())

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/family/invites/accept", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeInviteEndpointForbiddenForNonOwner(t *testing.T) {
	store := memory.NewStore(time.Second)
	owner := seedOwner(store, 4)
	fam := &model.Family{Base: model.Base{ID: uuid.New()}, OwnerID: owner.ID, MaxMembers: 4}
	store.PutFamily(fam)
	inv := &model.FamilyInvite{
		ID:        uuid.New(),
		FamilyID:  fam.ID,
		Token:     "tok",
		Status:    model.InviteStatusPending,
		ExpiresAt: testTime.Add(model.InviteTTL),
		CreatedAt: testTime,
	}
	store.PutInvite(inv)

	stranger := &model.Account{Base: model.Base{ID: uuid.New()}, Email: "s@example.com", MaxScreens: 1}
	store.PutAccount(stranger)
	engine := setupRouter(t, store, stranger.ID)

	rec := doJSON(t, engine, http.MethodDelete, fmt.Sprintf("/api/v1/family/invites/%s", inv.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOverviewEndpoint(t *testing.T) {
	store := memory.NewStore(time.Second)
	owner := seedOwner(store, 4)
	fam := &model.Family{Base: model.Base{ID: uuid.New()}, OwnerID: owner.ID, MaxMembers: 4}
	store.PutFamily(fam)
	engine := setupRouter(t, store, owner.ID)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/family", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data model.FamilyOverview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.AvailableSlots)
}

func TestOverviewEndpointWithoutFamily(t *testing.T) {
	store := memory.NewStore(time.Second)
	owner := seedOwner(store, 4)
	engine := setupRouter(t, store, owner.ID)

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/family", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
