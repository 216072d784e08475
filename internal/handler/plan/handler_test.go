package plan

import (
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
)

func TestListPlans(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.NewStore(time.Second)
	store.PutPlan(&model.Plan{ID: uuid.New(), Name: "Basic", Screens: 1, Active: true})
	store.PutPlan(&model.Plan{ID: uuid.New(), Name: "Premium", Screens: 4, Active: true})
	store.PutPlan(&model.Plan{ID: uuid.New(), Name: "Legacy", Screens: 2, Active: false})

	engine := gin.New()
	NewHandler(store.Plans(), time.Minute).RegisterRoutes(engine.Group(""))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []*model.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2, "inactive plans are excluded")

	// The second request is served from cache and must not pick up the
	// plan added in between.
	store.PutPlan(&model.Plan{ID: uuid.New(), Name: "Family", Screens: 5, Active: true})

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}
