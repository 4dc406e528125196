package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

const (
	HeaderXRequestID = "X-Request-ID"
	ContextRequestID = "request_id"

	maxRequestIDLen = 64
)

// inboundRequestID accepts a caller supplied id only if it is short and
// printable ASCII, since it ends up in logs and audit rows
func inboundRequestID(raw string) (string, bool) {
	if raw == "" || len(raw) > maxRequestIDLen {
		return "", false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x21 || raw[i] > 0x7e {
			return "", false
		}
	}
	return raw, true
}

// RequestID tags the request with an id and seeds the request metadata the
// audit recorder reads
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid, ok := inboundRequestID(c.GetHeader(HeaderXRequestID))
		if !ok {
			rid = uuid.NewString()
		}

		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)

		meta := requestmeta.Meta{
			RequestID: rid,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		c.Request = c.Request.WithContext(requestmeta.WithMeta(c.Request.Context(), meta))
		c.Next()
	}
}
