// Package handler holds the helpers shared by the resource handlers in its
// subpackages: the authenticated actor, path and query parsing, and request
// binding.
package handler

import (
	stderrors "errors"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/httputil"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

const actorKey = "actor"

// SetActor stores the authenticated caller on the request
func SetActor(c *gin.Context, actor model.Actor) {
	c.Set(actorKey, actor)
}

// Actor returns the caller set by the auth middleware. Routes without auth
// get the zero Actor, which has no role.
func Actor(c *gin.Context) model.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(model.Actor); ok {
			return actor
		}
	}
	return model.Actor{}
}

// BaseHandler is embedded by resource handlers
type BaseHandler struct {
	Validator *validator.Validator
}

// Bind decodes the JSON body into dst and validates it. On failure the
// error response has been written and false is returned.
func (h *BaseHandler) Bind(c *gin.Context, dst interface{}) bool {
	// an empty body binds as {} so required tags still report per field
	if err := c.ShouldBindJSON(dst); err != nil && !stderrors.Is(err, io.EOF) {
		httputil.RespondWithError(c, errors.Validation("invalid request body", map[string]string{"body": err.Error()}))
		return false
	}
	if err := h.Validator.Validate(dst); err != nil {
		httputil.RespondWithError(c, err)
		return false
	}
	return true
}

// PathID parses a uuid path parameter
func PathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, errors.Field(name, "must be a valid uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// QueryID parses an optional uuid query parameter
func QueryID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithError(c, errors.Field(name, "must be a valid uuid"))
		return nil, false
	}
	return &id, true
}

// QueryTime parses an optional RFC 3339 query parameter
func QueryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httputil.RespondWithError(c, errors.Field(name, "must be an RFC 3339 timestamp"))
		return nil, false
	}
	return &ts, true
}

// Page reads page and page_size, normalized
func Page(c *gin.Context) model.Pagination {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	p := model.Pagination{Page: page, PageSize: size}
	p.Normalize()
	return p
}
