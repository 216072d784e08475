package billing

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamhaven/entitlement-api/internal/handler"
	"github.com/streamhaven/entitlement-api/internal/model"
	billingService "github.com/streamhaven/entitlement-api/internal/service/billing"
)

const signatureHeader = "X-Webhook-Secret"

type Handler struct {
	service       *billingService.Service
	webhookSecret string
}

func NewHandler(service *billingService.Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/billing", h.HandlePaymentEvent)
}

func (h *Handler) HandlePaymentEvent(c *gin.Context) {
	secret := c.GetHeader(signatureHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid webhook secret"))
		return
	}

	var evt model.PaymentEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.ProcessPaymentEvent(c.Request.Context(), &evt); err != nil {
		handler.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
