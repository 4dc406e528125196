// Package worker relays the transactional outbox to the message broker.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/messaging"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts per event within one batch, RetryDelay doubling between them
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries is how many failed batches an event survives before it is
	// parked as failed
	MaxRetries int
	// StaleAfter reclaims events whose processing claim was abandoned
	StaleAfter time.Duration
}

func (c *OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("outbox batch size must be positive, got %d", c.BatchSize)
	case c.PollInterval <= 0:
		return fmt.Errorf("outbox poll interval must be positive, got %s", c.PollInterval)
	case c.RetryAttempts <= 0 || c.MaxRetries <= 0:
		return fmt.Errorf("outbox retry attempts and max retries must be positive")
	case c.RetryDelay <= 0:
		return fmt.Errorf("outbox retry delay must be positive, got %s", c.RetryDelay)
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	return nil
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	pub     messaging.Publisher
	cfg     OutboxProcessorConfig
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewOutboxProcessor panics on an invalid config; it is wired once at startup
func NewOutboxProcessor(
	repo repository.OutboxRepository,
	pub messaging.Publisher,
	cfg OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *OutboxProcessor {
	if err := cfg.validate(); err != nil {
		panic(err)
	}
	return &OutboxProcessor{
		repo:    repo,
		pub:     pub,
		cfg:     cfg,
		log:     log.WithComponent("outbox_processor"),
		metrics: m,
	}
}

// Start polls until ctx ends. A full batch is followed immediately by the
// next one so a backlog drains without waiting for the ticker.
func (p *OutboxProcessor) Start(ctx context.Context) {
	p.log.Info("outbox relay started", "batch_size", p.cfg.BatchSize, "poll_interval", p.cfg.PollInterval.String())
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			p.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *OutboxProcessor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := p.ProcessBatch(ctx)
		if err != nil {
			p.log.Error(err, "outbox batch failed")
			return
		}
		if n < p.cfg.BatchSize {
			return
		}
	}
}

// ProcessBatch claims one batch and publishes it, returning the number of
// events published
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEventsWithLock(ctx, p.cfg.BatchSize, p.cfg.StaleAfter)
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", outcome(err)).Inc()
	if err != nil {
		return 0, fmt.Errorf("claim pending events: %w", err)
	}

	published := 0
	for _, evt := range events {
		if err := p.relay(ctx, evt); err != nil {
			p.log.Error(err, "outbox event not relayed", "event_id", evt.ID.String(), "event_type", evt.EventType)
			continue
		}
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) relay(ctx context.Context, evt *model.OutboxEvent) error {
	envelope := event.Envelope{
		ID:          evt.ID,
		Type:        event.EventType(evt.EventType),
		AggregateID: evt.AggregateID,
		OccurredAt:  evt.CreatedAt,
		Payload:     evt.Payload,
	}

	err := withBackoff(ctx, p.cfg.RetryAttempts, p.cfg.RetryDelay, func() error {
		return p.pub.Publish(ctx, event.Channel, envelope)
	})
	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
		if markErr := p.repo.MarkFailed(ctx, evt.ID, err.Error(), p.cfg.MaxRetries); markErr != nil {
			p.log.Error(markErr, "could not record outbox failure", "event_id", evt.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	// the event is already out; a failed mark means it may be delivered twice,
	// which consumers absorb through their event id dedupe
	if err := p.repo.MarkProcessed(ctx, evt.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func withBackoff(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	err := fn()
	for i := 1; i < attempts && err != nil; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		err = fn()
	}
	return err
}
