package router

import (
	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/salon-api/internal/app"
	"github.com/jwalitptl/salon-api/internal/handler/audit"
	"github.com/jwalitptl/salon-api/internal/handler/catalog"
	"github.com/jwalitptl/salon-api/internal/handler/health"
	"github.com/jwalitptl/salon-api/internal/handler/invoice"
	"github.com/jwalitptl/salon-api/internal/handler/notification"
	"github.com/jwalitptl/salon-api/internal/handler/payment"
	"github.com/jwalitptl/salon-api/internal/handler/prometheus"
	"github.com/jwalitptl/salon-api/internal/handler/promotion"
	"github.com/jwalitptl/salon-api/internal/handler/reservation"
	"github.com/jwalitptl/salon-api/internal/middleware"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
	"github.com/jwalitptl/salon-api/pkg/validator"
)

// Handler registers routes on a single group
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// SplitHandler registers routes that skip authentication on public and the
// rest on private
type SplitHandler interface {
	RegisterRoutes(public, private *gin.RouterGroup)
}

type RouterConfig struct {
	RateLimit   *middleware.RateLimiterConfig
	CORSConfig  middleware.CORSConfig
	Timeout     middleware.TimeoutConfig
	SizeLimit   middleware.SizeLimitConfig
	Security    middleware.SecurityConfig
	ReleaseMode bool
}

type Deps struct {
	App      *app.App
	Auth     *middleware.AuthMiddleware
	Registry *prom.Registry
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	Clock    clock.Clock
	// Ready lists the dependencies checked by /health/ready
	Ready map[string]health.Pinger
}

type Router struct {
	engine *gin.Engine
	auth   *middleware.AuthMiddleware
	health *health.Handler
	prom   *prometheus.Handler
	split  []SplitHandler
	authed []Handler
	admin  []Handler
}

func NewRouter(d Deps, config RouterConfig) *Router {
	if config.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	v := validator.New()
	a := d.App
	r := &Router{
		engine: engine,
		auth:   d.Auth,
		health: health.NewHandler(d.Ready),
		prom:   prometheus.New(d.Registry, d.Metrics),
		split: []SplitHandler{
			reservation.NewHandler(a.Bookings, a.Availability, v),
			payment.NewHandler(a.Payments, a.Webhooks, v, d.Logger, d.Metrics),
			promotion.NewHandler(a.Promotions, v),
			catalog.NewHandler(a.Catalog, a.Availability, d.Clock, v),
		},
		authed: []Handler{
			invoice.NewHandler(a.Invoices, v),
			notification.NewHandler(a.Notifications),
		},
		admin: []Handler{
			audit.NewHandler(a.Audit, a.Recorder, d.Clock, v),
		},
	}

	// request id first so every later middleware can log it
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		r.prom.Middleware(),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.SizeLimit),
		middleware.Timeout(config.Timeout),
	)

	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(&r.engine.RouterGroup)
	r.engine.GET("/metrics", r.prom.Handler())

	api := r.engine.Group("/api/v1")
	r.health.RegisterRoutes(api)
	api.GET("/metrics", r.prom.Handler())

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())

	for _, h := range r.split {
		h.RegisterRoutes(api, protected)
	}
	for _, h := range r.authed {
		h.RegisterRoutes(protected)
	}

	admin := protected.Group("")
	admin.Use(r.auth.RequireRole(model.RoleAdmin, model.RoleSuperAdmin))
	for _, h := range r.admin {
		h.RegisterRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
