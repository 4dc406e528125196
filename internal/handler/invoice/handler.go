package invoice

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/invoice"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

type Handler struct {
	handler.BaseHandler
	service *invoice.Service
}

func NewHandler(service *invoice.Service, v *validator.Validator) *Handler {
	return &Handler{BaseHandler: handler.BaseHandler{Validator: v}, service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	invoices := r.Group("/invoices")
	{
		invoices.GET("", h.List)
		invoices.GET("/:id", h.Get)
		invoices.POST("/:id/hacienda", h.UpdateHaciendaStatus)
		invoices.POST("/:id/cancel", h.Cancel)
	}
}

func (h *Handler) List(c *gin.Context) {
	filter := model.InvoiceFilter{Pagination: handler.Page(c)}
	var ok bool
	if filter.BranchID, ok = handler.QueryID(c, "branch_id"); !ok {
		return
	}
	if filter.From, ok = handler.QueryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = handler.QueryTime(c, "to"); !ok {
		return
	}
	if raw := c.Query("hacienda_status"); raw != "" {
		status := model.HaciendaStatus(raw)
		filter.HaciendaStatus = &status
	}

	items, total, err := h.service.List(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, items, filter.Page, filter.PageSize, total)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.service.Get(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, inv)
}

func (h *Handler) UpdateHaciendaStatus(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.HaciendaStatusRequest
	if !h.Bind(c, &req) {
		return
	}
	inv, err := h.service.UpdateHaciendaStatus(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, inv)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.CancelInvoiceRequest
	if !h.Bind(c, &req) {
		return
	}
	inv, err := h.service.Cancel(c.Request.Context(), handler.Actor(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, inv)
}
