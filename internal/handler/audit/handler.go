package audit

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

type Handler struct {
	handler.BaseHandler
	service  *audit.Service
	recorder *audit.Recorder
	clock    clock.Clock
}

func NewHandler(service *audit.Service, recorder *audit.Recorder, clk clock.Clock, v *validator.Validator) *Handler {
	return &Handler{
		BaseHandler: handler.BaseHandler{Validator: v},
		service:     service,
		recorder:    recorder,
		clock:       clk,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	logs := r.Group("/audit")
	{
		logs.GET("/logs", h.ListLogs)
		logs.GET("/stats", h.GetAggregateStats)
		logs.GET("/export", h.ExportLogs)
		logs.POST("/cleanup", h.Cleanup)
	}
}

func filterFromQuery(c *gin.Context) (model.AuditFilter, bool) {
	filter := model.AuditFilter{
		Action:     c.Query("action"),
		TableName:  c.Query("table_name"),
		RecordID:   c.Query("record_id"),
		IPAddress:  c.Query("ip_address"),
		Pagination: handler.Page(c),
	}
	var ok bool
	if filter.UserID, ok = handler.QueryID(c, "user_id"); !ok {
		return filter, false
	}
	if filter.From, ok = handler.QueryTime(c, "from"); !ok {
		return filter, false
	}
	if filter.To, ok = handler.QueryTime(c, "to"); !ok {
		return filter, false
	}
	return filter, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}
	logs, total, err := h.service.List(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, logs, filter.Page, filter.PageSize, total)
}

func (h *Handler) GetAggregateStats(c *gin.Context) {
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), handler.Actor(c), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, stats)
}

func (h *Handler) ExportLogs(c *gin.Context) {
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}
	actor := handler.Actor(c)
	if !actor.IsAdmin() {
		// checked before headers are written so the error keeps its envelope
		httputil.RespondWithError(c, errors.Forbidden("audit logs are restricted to administrators"))
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.csv", h.clock.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)
	if err := h.service.Export(c.Request.Context(), actor, filter, c.Writer); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) Cleanup(c *gin.Context) {
	var req model.AuditCleanupRequest
	if !h.Bind(c, &req) {
		return
	}
	deleted, err := h.service.Cleanup(c.Request.Context(), handler.Actor(c), req.DaysToKeep)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	summary := audit.CleanupSummary(req.DaysToKeep, deleted)
	h.recorder.Log(c.Request.Context(), model.AuditActionCleanup, "audit_logs", "", nil, summary)
	httputil.RespondWithSuccess(c, http.StatusOK, summary)
}
