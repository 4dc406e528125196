package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	// AllowOrigins lists exact origins; "*" allows any origin
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderXRequestID},
		ExposeHeaders: []string{"Content-Length", HeaderXRequestID, "Retry-After"},
		MaxAge:        86400,
	}
}

type corsPolicy struct {
	any         bool
	origins     map[string]bool
	credentials bool
	// preflight and simple hold the precomputed response headers
	preflight map[string]string
	simple    map[string]string
}

func newCORSPolicy(config CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]bool, len(config.AllowOrigins)),
		credentials: config.AllowCredentials,
		simple:      map[string]string{},
		preflight: map[string]string{
			"Access-Control-Allow-Methods": strings.Join(config.AllowMethods, ", "),
			"Access-Control-Allow-Headers": strings.Join(config.AllowHeaders, ", "),
			"Access-Control-Max-Age":       strconv.Itoa(config.MaxAge),
		},
	}
	for _, o := range config.AllowOrigins {
		if o == "*" {
			p.any = true
			continue
		}
		p.origins[o] = true
	}
	if len(config.ExposeHeaders) > 0 {
		p.simple["Access-Control-Expose-Headers"] = strings.Join(config.ExposeHeaders, ", ")
	}
	if p.credentials {
		p.simple["Access-Control-Allow-Credentials"] = "true"
		p.preflight["Access-Control-Allow-Credentials"] = "true"
	}
	return p
}

// allowed returns the Access-Control-Allow-Origin value for origin, or "".
// A wildcard is echoed back as the concrete origin when credentials are on.
func (p *corsPolicy) allowed(origin string) string {
	switch {
	case origin == "":
		return ""
	case p.origins[origin]:
		return origin
	case p.any && p.credentials:
		return origin
	case p.any:
		return "*"
	default:
		return ""
	}
}

// CORS answers preflight requests itself and decorates the rest. Requests
// from origins outside the list get no CORS headers at all.
func CORS(config CORSConfig) gin.HandlerFunc {
	policy := newCORSPolicy(config)

	return func(c *gin.Context) {
		preflight := c.Request.Method == http.MethodOptions
		if allow := policy.allowed(c.GetHeader("Origin")); allow != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Add("Vary", "Origin")
			headers := policy.simple
			if preflight {
				headers = policy.preflight
			}
			for k, v := range headers {
				h.Set(k, v)
			}
		}

		if preflight {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
