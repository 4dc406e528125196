package reservation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/availability"
	"github.com/jwalitptl/salon-api/internal/service/booking"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

type Handler struct {
	handler.BaseHandler
	bookings     *booking.Service
	availability *availability.Service
}

func NewHandler(bookings *booking.Service, availabilitySvc *availability.Service, v *validator.Validator) *Handler {
	return &Handler{
		BaseHandler:  handler.BaseHandler{Validator: v},
		bookings:     bookings,
		availability: availabilitySvc,
	}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.GET("/reservations/available-slots", h.AvailableSlots)

	reservations := private.Group("/reservations")
	{
		reservations.POST("", h.Create)
		reservations.GET("", h.List)
		reservations.GET("/:id", h.Get)
		reservations.POST("/:id/cancel", h.Cancel)
		reservations.POST("/:id/confirm", h.Confirm)
		reservations.POST("/:id/complete", h.Complete)
		reservations.POST("/:id/reschedule", h.Reschedule)
	}
}

func (h *Handler) AvailableSlots(c *gin.Context) {
	serviceID, ok := handler.QueryID(c, "service_id")
	if !ok {
		return
	}
	if serviceID == nil {
		httputil.RespondWithError(c, errors.Field("service_id", "is required"))
		return
	}
	stylistID, ok := handler.QueryID(c, "stylist_id")
	if !ok {
		return
	}

	slots, err := h.availability.Slots(c.Request.Context(), availability.SlotQuery{
		ServiceID: *serviceID,
		StylistID: stylistID,
		Date:      c.Query("date"),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, slots)
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateReservationRequest
	if !h.Bind(c, &req) {
		return
	}

	result, err := h.bookings.Create(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, result)
}

func (h *Handler) List(c *gin.Context) {
	filter := model.ReservationFilter{Pagination: handler.Page(c)}
	var ok bool
	if filter.ClientID, ok = handler.QueryID(c, "client_id"); !ok {
		return
	}
	if filter.StylistID, ok = handler.QueryID(c, "stylist_id"); !ok {
		return
	}
	if filter.BranchID, ok = handler.QueryID(c, "branch_id"); !ok {
		return
	}
	if filter.From, ok = handler.QueryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = handler.QueryTime(c, "to"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := model.ReservationStatus(raw)
		filter.Status = &status
	}

	items, total, err := h.bookings.List(c.Request.Context(), handler.Actor(c), filter)
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
	res, err := h.bookings.Get(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.CancelReservationRequest
	if !h.Bind(c, &req) {
		return
	}
	res, err := h.bookings.Cancel(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, res)
}

func (h *Handler) Confirm(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	res, err := h.bookings.Confirm(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, res)
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	res, err := h.bookings.Complete(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, res)
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.RescheduleReservationRequest
	if !h.Bind(c, &req) {
		return
	}
	res, err := h.bookings.Reschedule(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, res)
}
