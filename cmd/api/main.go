package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/salon-api/internal/app"
	"github.com/jwalitptl/salon-api/internal/config"
	"github.com/jwalitptl/salon-api/internal/handler/health"
	"github.com/jwalitptl/salon-api/internal/middleware"
	"github.com/jwalitptl/salon-api/internal/router"
	internalworker "github.com/jwalitptl/salon-api/internal/worker"
	"github.com/jwalitptl/salon-api/pkg/auth"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
	"github.com/jwalitptl/salon-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(cfg.ToLogger())
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("salon", registry)

	storage, err := app.OpenStorage(ctx, cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer storage.Close()

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

	ready := map[string]health.Pinger{}
	if storage.DB != nil {
		ready["database"] = storage.DB
	}

	// with an in-process store nothing else can see the outbox, so the
	// dispatcher and notification consumer run here
	if storage.Embedded() {
		broker, err := app.OpenBroker(cfg, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open message broker")
		}
		defer broker.Close()
		if p, ok := broker.(interface{ Ping(context.Context) error }); ok {
			ready["redis"] = health.PingFunc(p.Ping)
		}

		processor := worker.NewOutboxProcessor(storage.Repos.Outbox, broker, cfg.ToOutbox(), appLogger, m)
		go processor.Start(ctx)
		go func() {
			if err := a.Notifications.Run(ctx, broker); err != nil {
				log.Error().Err(err).Msg("notification consumer stopped")
			}
		}()

		cleanup := internalworker.NewAuditCleanupWorker(a.Audit, a.Recorder, storage.Repos.Outbox, clock.Real{}, cfg.ToCleanup(), appLogger)
		go func() {
			if err := cleanup.Start(ctx); err != nil {
				log.Error().Err(err).Msg("cleanup scheduler stopped")
			}
		}()
	}

	// webhooks outlive the signal: requests still in flight during shutdown
	// enqueue into it, so it stops only after the server has
	webhookCtx, stopWebhooks := context.WithCancel(context.Background())
	webhooksDone := make(chan struct{})
	go func() {
		defer close(webhooksDone)
		a.Webhooks.Start(webhookCtx, cfg.Server.WebhookWorkers)
	}()

	routerConfig := router.RouterConfig{
		CORSConfig:  middleware.DefaultCORSConfig(),
		Timeout:     middleware.TimeoutConfig{Duration: cfg.Server.RequestTimeout},
		SizeLimit:   middleware.DefaultSizeLimitConfig(),
		Security:    middleware.DefaultSecurityConfig(),
		ReleaseMode: cfg.Log.Level != "debug",
	}
	routerConfig.CORSConfig.AllowOrigins = cfg.Server.AllowedOrigins
	routerConfig.SizeLimit.MaxBodySize = cfg.Server.MaxBodyBytes
	if cfg.RateLimit.Enabled {
		rl := middleware.DefaultRateLimiterConfig()
		rl.Rate = cfg.RequestRate()
		rl.Burst = cfg.RateLimit.Burst
		routerConfig.RateLimit = &rl
	}

	r := router.NewRouter(router.Deps{
		App:      a,
		Auth:     middleware.NewAuthMiddleware(auth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)),
		Registry: registry,
		Metrics:  m,
		Logger:   appLogger,
		Clock:    clock.Real{},
		Ready:    ready,
	}, routerConfig)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("database", cfg.Database.Driver).Str("gateway", cfg.Stripe.Mode).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("server forced to shutdown")
	}

	stopWebhooks()
	<-webhooksDone
	if shutdownErr != nil {
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}
