package promotion

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/promotion"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

type Handler struct {
	handler.BaseHandler
	service *promotion.Service
}

func NewHandler(service *promotion.Service, v *validator.Validator) *Handler {
	return &Handler{BaseHandler: handler.BaseHandler{Validator: v}, service: service}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.GET("/promotions/public", h.ListPublic)

	promotions := private.Group("/promotions")
	{
		promotions.POST("/validate", h.Validate)
		promotions.POST("", h.Create)
		promotions.GET("", h.List)
		promotions.GET("/:id", h.Get)
		promotions.POST("/:id/deactivate", h.Deactivate)
	}
}

// Validate previews a code without redeeming it. Rejections are a
// successful response with valid=false and a reason.
func (h *Handler) Validate(c *gin.Context) {
	var req model.ValidatePromotionRequest
	if !h.Bind(c, &req) {
		return
	}
	result, err := h.service.Validate(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, result)
}

func (h *Handler) ListPublic(c *gin.Context) {
	items, err := h.service.ListPublic(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, items)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreatePromotionRequest
	if !h.Bind(c, &req) {
		return
	}
	p, err := h.service.Create(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, p)
}

func (h *Handler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, items)
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

func (h *Handler) Deactivate(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.Deactivate(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}
