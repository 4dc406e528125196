package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/salon-api/internal/app"
	"github.com/jwalitptl/salon-api/internal/config"
	"github.com/jwalitptl/salon-api/internal/handler/health"
	promhandler "github.com/jwalitptl/salon-api/internal/handler/prometheus"
	internalworker "github.com/jwalitptl/salon-api/internal/worker"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
	"github.com/jwalitptl/salon-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	healthAddr := flag.String("health-addr", ":8081", "listen address for health and metrics")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Database.Driver).Msg("Worker needs a shared database, run the api with the memory driver instead")
	}

	appLogger := logger.NewLogger(cfg.ToLogger()).WithComponent("worker")
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics("salon", registry)

	storage, err := app.OpenStorage(ctx, cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer storage.Close()

	broker, err := app.OpenBroker(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create message broker")
	}
	defer broker.Close()

	mailer, sender := app.Channels(cfg)
	a := app.New(app.Deps{
		Repos:   storage.Repos,
		Gateway: app.NewGateway(cfg, m),
		Email:   mailer,
		SMS:     sender,
		Clock:   clock.Real{},
		Metrics: m,
		Logger:  appLogger,
	}, cfg)

	ready := map[string]health.Pinger{"database": storage.DB}
	if p, ok := broker.(interface{ Ping(context.Context) error }); ok {
		ready["redis"] = health.PingFunc(p.Ping)
	}
	srv := healthServer(*healthAddr, ready, registry, m)

	processor := worker.NewOutboxProcessor(storage.Repos.Outbox, broker, cfg.ToOutbox(), appLogger, m)
	cleanup := internalworker.NewAuditCleanupWorker(a.Audit, a.Recorder, storage.Repos.Outbox, clock.Real{}, cfg.ToCleanup(), appLogger)

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error().Err(err).Str("job", name).Msg("Worker job stopped")
				stop()
			}
		}()
	}
	run("outbox", func() error {
		processor.Start(ctx)
		return nil
	})
	run("notifications", func() error { return a.Notifications.Run(ctx, broker) })
	run("cleanup", func() error { return cleanup.Start(ctx) })

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health server shutdown failed")
	}
	wg.Wait()
}

func healthServer(addr string, ready map[string]health.Pinger, registry *prometheus.Registry, m *metrics.Metrics) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(ready).RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", promhandler.New(registry, m).Handler())

	srv := &http.Server{Addr: addr, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Health check server failed")
		}
	}()
	return srv
}
