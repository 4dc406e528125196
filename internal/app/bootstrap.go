package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/salon-api/internal/config"
	"github.com/jwalitptl/salon-api/internal/email"
	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/internal/gateway/fake"
	"github.com/jwalitptl/salon-api/internal/gateway/stripe"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/repository/memory"
	"github.com/jwalitptl/salon-api/internal/repository/postgres"
	"github.com/jwalitptl/salon-api/internal/sms"
	"github.com/jwalitptl/salon-api/pkg/messaging"
	memorybroker "github.com/jwalitptl/salon-api/pkg/messaging/memory"
	"github.com/jwalitptl/salon-api/pkg/messaging/redis"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

// Storage holds the repositories and, for postgres, the pool behind them
type Storage struct {
	Repos *repository.Repositories
	DB    *sqlx.DB
}

// Embedded reports whether the store lives in this process, in which case
// background workers must run here too
func (s *Storage) Embedded() bool {
	return s.DB == nil
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func OpenStorage(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Storage, error) {
	switch cfg.Database.Driver {
	case "memory":
		return &Storage{Repos: memory.NewStore().Repositories()}, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.ToPostgres())
		if err != nil {
			return nil, err
		}
		return &Storage{Repos: postgres.NewRepositories(db, m), DB: db}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// OpenBroker connects to redis, or returns an in-process broker when no
// redis url is configured
func OpenBroker(cfg *config.Config, log zerolog.Logger) (messaging.Broker, error) {
	if cfg.Redis.URL == "" {
		return memorybroker.NewBroker(256), nil
	}
	return redis.NewRedisBroker(cfg.ToBroker(), log)
}

func NewGateway(cfg *config.Config, m *metrics.Metrics) gateway.Gateway {
	if cfg.Stripe.Mode == "fake" {
		return fake.New(cfg.Stripe.WebhookSecret)
	}
	return stripe.New(cfg.ToStripe(), m)
}

// Channels returns the configured external notification channels. A channel
// that is not configured comes back as a nil interface.
func Channels(cfg *config.Config) (email.Service, sms.Sender) {
	var (
		mailer email.Service
		sender sms.Sender
	)
	if ec, ok := cfg.ToEmail(); ok {
		mailer = email.NewSMTPService(ec)
	}
	if sc, ok := cfg.ToSMS(); ok {
		sender = sms.NewTwilioSender(sc)
	}
	return mailer, sender
}
