// Package health serves liveness and readiness checks.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency the service cannot serve traffic without.
// *sqlx.DB satisfies it directly.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a plain function, such as a redis ping, to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type Handler struct {
	deps map[string]Pinger
}

func NewHandler(deps map[string]Pinger) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
}

func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// Ready pings every dependency in parallel and reports each one, so an
// operator can tell which of them failed
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	checks := h.check(ctx)
	status, code := "UP", http.StatusOK
	for _, state := range checks {
		if state != "UP" {
			status, code = "DOWN", http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func (h *Handler) check(ctx context.Context) map[string]string {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.deps))
	)
	for name, dep := range h.deps {
		wg.Add(1)
		go func(name string, dep Pinger) {
			defer wg.Done()
			state := "UP"
			if err := dep.PingContext(ctx); err != nil {
				state = "DOWN"
			}
			mu.Lock()
			checks[name] = state
			mu.Unlock()
		}(name, dep)
	}
	wg.Wait()
	return checks
}
