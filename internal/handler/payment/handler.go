package payment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/payment"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

const signatureHeader = "Stripe-Signature"

type Handler struct {
	handler.BaseHandler
	service   *payment.Service
	processor *payment.WebhookProcessor
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewHandler(service *payment.Service, processor *payment.WebhookProcessor, v *validator.Validator, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		BaseHandler: handler.BaseHandler{Validator: v},
		service:     service,
		processor:   processor,
		logger:      log.WithComponent("payment_handler"),
		metrics:     m,
	}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.POST("/webhooks/stripe", h.Webhook)

	payments := private.Group("/payments")
	{
		payments.POST("/stripe/create-intent", h.CreateIntent)
		payments.POST("/stripe/confirm", h.ConfirmIntent)
		payments.GET("/:id", h.Get)
		payments.POST("/:id/refund", h.Refund)
	}
}

func (h *Handler) CreateIntent(c *gin.Context) {
	var req model.CreateIntentRequest
	if !h.Bind(c, &req) {
		return
	}
	result, err := h.service.CreateIntent(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, result)
}

func (h *Handler) ConfirmIntent(c *gin.Context) {
	var req model.ConfirmIntentRequest
	if !h.Bind(c, &req) {
		return
	}
	p, err := h.service.ConfirmIntent(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

func (h *Handler) Refund(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.RefundRequest
	if !h.Bind(c, &req) {
		return
	}
	p, err := h.service.Refund(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

// Webhook acknowledges every delivery with 200. Unverifiable payloads are
// logged and counted, verified events are applied asynchronously.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		h.reject(c, err, "unreadable body")
		return
	}

	evt, err := h.service.ParseWebhook(payload, c.GetHeader(signatureHeader))
	if err != nil {
		h.reject(c, err, "invalid webhook")
		return
	}

	if !h.processor.Enqueue(evt) {
		h.logger.Warn("webhook queue unavailable, applying inline", "event_id", evt.ID, "event_type", evt.Type)
		h.processor.Process(context.WithoutCancel(c.Request.Context()), evt)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) reject(c *gin.Context, err error, msg string) {
	h.logger.Warn(msg, "error", err.Error(), "ip", c.ClientIP())
	h.metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
	c.JSON(http.StatusOK, gin.H{"received": false})
}
