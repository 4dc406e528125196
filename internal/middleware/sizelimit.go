package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/salon-api/pkg/httputil"
)

type SizeLimitConfig struct {
	MaxBodySize   int64
	MaxHeaderSize int
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   1 << 20,
		MaxHeaderSize: 16 << 10,
	}
}

func headerBytes(h http.Header) int {
	n := 0
	for name, values := range h {
		for _, v := range values {
			n += len(name) + len(v)
		}
	}
	return n
}

// SizeLimit rejects requests whose declared body or headers are too large
// and caps undeclared bodies while they are read
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	bodyMsg := "body size exceeds " + strconv.FormatInt(config.MaxBodySize, 10) + " bytes"
	headerMsg := "header size exceeds " + strconv.Itoa(config.MaxHeaderSize) + " bytes"
	reject := func(c *gin.Context, msg string) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, httputil.Response{
			Status:  "error",
			Error:   "payload_too_large",
			Message: msg,
		})
	}

	return func(c *gin.Context) {
		switch {
		case c.Request.ContentLength > config.MaxBodySize:
			reject(c, bodyMsg)
			return
		case config.MaxHeaderSize > 0 && headerBytes(c.Request.Header) > config.MaxHeaderSize:
			reject(c, headerMsg)
			return
		}
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		}
		c.Next()
	}
}
