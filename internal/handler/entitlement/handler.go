package entitlement

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamhaven/entitlement-api/internal/handler"
	"github.com/streamhaven/entitlement-api/internal/middleware"
	entitlementService "github.com/streamhaven/entitlement-api/internal/service/entitlement"
)

type Handler struct {
	service *entitlementService.Service
}

func NewHandler(service *entitlementService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	entitlement := r.Group("/entitlement")
	{
		entitlement.GET("/access", h.GetAccess)
		entitlement.GET("/plan", h.GetPlanInfo)
	}
}

func (h *Handler) GetAccess(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	hasAccess, err := h.service.HasStreamingAccess(c.Request.Context(), accountID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"has_access": hasAccess}))
}

func (h *Handler) GetPlanInfo(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	info, err := h.service.GetUserPlanInfo(c.Request.Context(), accountID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"plan_info": info}))
}
