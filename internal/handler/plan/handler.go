package plan

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/streamhaven/entitlement-api/internal/handler"
	"github.com/streamhaven/entitlement-api/internal/model"
	"github.com/streamhaven/entitlement-api/internal/repository"
)

const catalogCacheKey = "active_plans"

// Handler serves the read-only plan catalog. The catalog is administered
// externally and changes rarely, so responses are cached briefly. The
// entitlement evaluator never reads through this cache.
type Handler struct {
	plans repository.PlanRepository
	cache *cache.Cache
}

func NewHandler(plans repository.PlanRepository, ttl time.Duration) *Handler {
	return &Handler{
		plans: plans,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/plans", h.ListPlans)
}

func (h *Handler) ListPlans(c *gin.Context) {
	if cached, ok := h.cache.Get(catalogCacheKey); ok {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(cached.([]*model.Plan)))
		return
	}

	plans, err := h.plans.ListActive(c.Request.Context())
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	h.cache.Set(catalogCacheKey, plans, cache.DefaultExpiration)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(plans))
}
