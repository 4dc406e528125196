package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type SecurityConfig struct {
	// HSTSMaxAge in seconds; zero disables the header
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptions          string
	ReferrerPolicy        string
	CSPDirectives         []string
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		// the API only serves JSON and CSV
		CSPDirectives: []string{"default-src 'none'", "frame-ancestors 'none'"},
	}
}

// SecurityHeaders sets the fixed response headers for an API that never
// renders HTML. Responses carry booking and payment data, so nothing is
// cacheable.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	fixed := [][2]string{
		{"X-Content-Type-Options", "nosniff"},
		{"X-XSS-Protection", "0"},
		{"Cache-Control", "no-store"},
	}
	if config.FrameOptions != "" {
		fixed = append(fixed, [2]string{"X-Frame-Options", config.FrameOptions})
	}
	if config.ReferrerPolicy != "" {
		fixed = append(fixed, [2]string{"Referrer-Policy", config.ReferrerPolicy})
	}
	if len(config.CSPDirectives) > 0 {
		fixed = append(fixed, [2]string{"Content-Security-Policy", strings.Join(config.CSPDirectives, "; ")})
	}

	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAge)
		if config.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range fixed {
			h.Set(kv[0], kv[1])
		}
		// TLS may be terminated by the load balancer
		if hsts != "" && (c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https") {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
