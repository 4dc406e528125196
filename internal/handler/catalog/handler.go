// Package catalog exposes branches, services, stylists and stylist
// schedules.
package catalog

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/availability"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

// blackoutHorizon bounds GET /stylists/:id/blackouts without a to param
const blackoutHorizon = 30 * 24 * time.Hour

type Handler struct {
	handler.BaseHandler
	catalog      *catalog.Service
	availability *availability.Service
	clock        clock.Clock
}

func NewHandler(catalogSvc *catalog.Service, availabilitySvc *availability.Service, clk clock.Clock, v *validator.Validator) *Handler {
	return &Handler{
		BaseHandler:  handler.BaseHandler{Validator: v},
		catalog:      catalogSvc,
		availability: availabilitySvc,
		clock:        clk,
	}
}

func (h *Handler) RegisterRoutes(public, private *gin.RouterGroup) {
	public.GET("/branches", h.ListBranches)
	public.GET("/branches/:id", h.GetBranch)
	public.GET("/services", h.ListServices)
	public.GET("/services/:id", h.GetService)
	public.GET("/stylists", h.ListStylists)
	public.GET("/stylists/:id", h.GetStylist)
	public.GET("/stylists/:id/availability", h.ListRules)
	public.GET("/stylists/:id/blackouts", h.ListBlackouts)

	private.POST("/users", h.CreateUser)
	private.POST("/branches", h.CreateBranch)
	private.POST("/services", h.CreateService)
	private.PUT("/services/:id", h.UpdateService)
	private.POST("/stylists", h.CreateStylist)
	private.PUT("/stylists/:id/availability", h.SetRules)
	private.POST("/stylists/:id/blackouts", h.AddBlackout)
	private.DELETE("/stylists/:id/blackouts/:blackoutId", h.DeleteBlackout)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if !h.Bind(c, &req) {
		return
	}
	user, err := h.catalog.CreateUser(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, user)
}

func (h *Handler) CreateBranch(c *gin.Context) {
	var req model.CreateBranchRequest
	if !h.Bind(c, &req) {
		return
	}
	branch, err := h.catalog.CreateBranch(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, branch)
}

func (h *Handler) ListBranches(c *gin.Context) {
	branches, err := h.catalog.ListBranches(c.Request.Context(), c.Query("include_inactive") != "true")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, branches)
}

func (h *Handler) GetBranch(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	branch, err := h.catalog.GetBranch(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, branch)
}

func (h *Handler) CreateService(c *gin.Context) {
	var req model.CreateServiceRequest
	if !h.Bind(c, &req) {
		return
	}
	svc, err := h.catalog.CreateService(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, svc)
}

func (h *Handler) UpdateService(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateServiceRequest
	if !h.Bind(c, &req) {
		return
	}
	svc, err := h.catalog.UpdateService(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, svc)
}

func (h *Handler) ListServices(c *gin.Context) {
	branchID, ok := handler.QueryID(c, "branch_id")
	if !ok {
		return
	}
	services, err := h.catalog.ListServices(c.Request.Context(), model.ServiceFilter{
		BranchID:   branchID,
		Category:   c.Query("category"),
		ActiveOnly: c.Query("include_inactive") != "true",
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, services)
}

func (h *Handler) GetService(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	svc, err := h.catalog.GetService(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, svc)
}

func (h *Handler) CreateStylist(c *gin.Context) {
	var req model.CreateStylistRequest
	if !h.Bind(c, &req) {
		return
	}
	stylist, err := h.catalog.CreateStylist(c.Request.Context(), handler.Actor(c), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, stylist)
}

func (h *Handler) ListStylists(c *gin.Context) {
	branchID, ok := handler.QueryID(c, "branch_id")
	if !ok {
		return
	}
	stylists, err := h.catalog.ListStylists(c.Request.Context(), branchID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, stylists)
}

func (h *Handler) GetStylist(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	stylist, err := h.catalog.GetStylist(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, stylist)
}

func (h *Handler) ListRules(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	rules, err := h.availability.ListRules(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rules)
}

func (h *Handler) SetRules(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.SetAvailabilityRequest
	if !h.Bind(c, &req) {
		return
	}
	rules, err := h.availability.SetRules(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, rules)
}

func (h *Handler) ListBlackouts(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	from, ok := handler.QueryTime(c, "from")
	if !ok {
		return
	}
	to, ok := handler.QueryTime(c, "to")
	if !ok {
		return
	}
	start := h.clock.Now()
	if from != nil {
		start = *from
	}
	end := start.Add(blackoutHorizon)
	if to != nil {
		end = *to
	}

	blackouts, err := h.availability.ListBlackouts(c.Request.Context(), id, start, end)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, blackouts)
}

func (h *Handler) AddBlackout(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	var req model.CreateBlackoutRequest
	if !h.Bind(c, &req) {
		return
	}
	blackout, err := h.availability.AddBlackout(c.Request.Context(), handler.Actor(c), id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, blackout)
}

func (h *Handler) DeleteBlackout(c *gin.Context) {
	id, ok := handler.PathID(c, "id")
	if !ok {
		return
	}
	blackoutID, ok := handler.PathID(c, "blackoutId")
	if !ok {
		return
	}
	if err := h.availability.DeleteBlackout(c.Request.Context(), handler.Actor(c), id, blackoutID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
