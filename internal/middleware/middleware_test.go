package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/handler"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/pkg/auth"
	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthenticateSetsActorAndMeta(t *testing.T) {
	tokens := auth.NewManager("secret", "salon-api", time.Hour)
	m := NewAuthMiddleware(tokens)

	var (
		actor model.Actor
		meta  requestmeta.Meta
	)
	engine := gin.New()
	engine.Use(RequestID(), m.Authenticate())
	engine.GET("/me", func(c *gin.Context) {
		actor = handler.Actor(c)
		meta = requestmeta.FromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	userID := uuid.New()
	token, err := tokens.Generate(userID, string(model.RoleStylist))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderXRequestID, "req-42")
	req.Header.Set("User-Agent", "salon-app/1.0")
	w := serve(engine, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, model.Actor{UserID: userID, Role: model.RoleStylist}, actor)
	require.NotNil(t, meta.UserID)
	assert.Equal(t, userID, *meta.UserID)
	assert.Equal(t, "req-42", meta.RequestID)
	assert.Equal(t, "salon-app/1.0", meta.UserAgent)
	assert.Equal(t, "req-42", w.Header().Get(HeaderXRequestID))
}

func TestAuthenticateRejects(t *testing.T) {
	tokens := auth.NewManager("secret", "salon-api", time.Hour)
	other := auth.NewManager("other-secret", "salon-api", time.Hour)
	badRole, err := tokens.Generate(uuid.New(), "owner")
	require.NoError(t, err)
	foreign, err := other.Generate(uuid.New(), "client")
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(NewAuthMiddleware(tokens).Authenticate())
	engine.GET("/me", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for name, header := range map[string]string{
		"missing":       "",
		"scheme":        "Basic abc",
		"wrong secret":  "Bearer " + foreign,
		"unknown role":  "Bearer " + badRole,
		"garbage token": "Bearer abc.def.ghi",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := serve(engine, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
		})
	}
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware(nil)
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		handler.SetActor(c, model.Actor{UserID: uuid.New(), Role: model.Role(c.GetHeader("X-Role"))})
	}, m.RequireRole(model.RoleAdmin, model.RoleSuperAdmin))
	engine.GET("/admin", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for role, want := range map[string]int{
		"admin":       http.StatusNoContent,
		"super_admin": http.StatusNoContent,
		"stylist":     http.StatusForbidden,
		"client":      http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("X-Role", role)
		assert.Equal(t, want, serve(engine, req).Code, role)
	}
}

func TestRateLimitIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2})
	engine := gin.New()
	engine.Use(rl.RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(engine, req).Code
	}

	assert.Equal(t, http.StatusNoContent, from("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, from("10.0.0.2"))
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.example.com"}
	engine := gin.New()
	engine.Use(CORS(cfg))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(engine, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(engine, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8, MaxHeaderSize: 1 << 10}))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Recovery())
	engine.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","error":"internal_error","message":"internal server error"}`, w.Body.String())
}

func TestRequestIDReplacesUnsafeInbound(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for name, inbound := range map[string]string{
		"too long": strings.Repeat("a", 65),
		"spaces":   "req 42",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderXRequestID, inbound)
			w := serve(engine, req)

			got := w.Header().Get(HeaderXRequestID)
			assert.NotEqual(t, inbound, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestCORSWildcardWithCredentialsEchoesOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = true

	engine := gin.New()
	engine.Use(CORS(cfg))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://book.example.com")
	w := serve(engine, req)

	assert.Equal(t, "https://book.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Empty(t, w.Header().Get("Access-Control-Max-Age"))
}
