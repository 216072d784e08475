package family

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamhaven/entitlement-api/internal/handler"
	"github.com/streamhaven/entitlement-api/internal/middleware"
	familyService "github.com/streamhaven/entitlement-api/internal/service/family"
)

type Handler struct {
	service *familyService.Service
}

func NewHandler(service *familyService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	family := r.Group("/family")
	{
		family.GET("", h.GetOverview)
		family.POST("/invites", h.CreateInvite)
		family.DELETE("/invites/:id", h.RevokeInvite)
		family.POST("/invites/accept", h.AcceptInvite)
		family.POST("/leave", h.Leave)
		family.DELETE("/members/:userId", h.RemoveMember)
	}
}

type createInviteRequest struct {
	Email *string `json:"email" binding:"omitempty,email"`
}

func (h *Handler) CreateInvite(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	invite, err := h.service.CreateInvite(c.Request.Context(), accountID, req.Email)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(invite))
}

func (h *Handler) RevokeInvite(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	inviteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid invite ID"))
		return
	}

	if err := h.service.RevokeInvite(c.Request.Context(), inviteID, accountID); err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type acceptInviteRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) AcceptInvite(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	var req acceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.AcceptInvite(c.Request.Context(), req.Token, accountID); err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) Leave(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	if err := h.service.LeaveFamily(c.Request.Context(), accountID); err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) RemoveMember(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	memberID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid member ID"))
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), accountID, memberID); err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) GetOverview(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing account identity"))
		return
	}

	overview, err := h.service.Overview(c.Request.Context(), accountID)
	if err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(overview))
}
