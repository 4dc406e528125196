package middleware

import (
	stderrors "errors"
	"fmt"
	"net"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/httputil"
)

// clientGone reports panics caused by writing to a closed connection
func clientGone(v interface{}) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr) &&
		(stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET))
}

// Recovery turns a handler panic into a 500 with the standard error body.
// A panic from a dropped connection is logged without a response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			evt := log.Error().
				Interface("panic", v).
				Str("method", c.Request.Method).
				Str("path", c.FullPath()).
				Str("request_id", c.GetString(ContextRequestID))

			if clientGone(v) {
				evt.Msg("client connection closed mid response")
				c.Abort()
				return
			}
			evt.Bytes("stack", debug.Stack()).Msg("recovered from handler panic")
			httputil.RespondWithError(c, errors.Internal(fmt.Errorf("panic: %v", v)))
		}()
		c.Next()
	}
}
