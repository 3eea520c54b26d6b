package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/resilience"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

// Publisher drains PENDING outbox rows to the broker. One logical drainer runs
// per service instance; SKIP LOCKED in the repository keeps accidental extra
// instances from double-draining a batch.
type Publisher struct {
	uow         port.UnitOfWork
	broker      port.EventPublisher
	breaker     *resilience.Breaker
	interval    time.Duration
	batchSize   int
	maxAttempts int32
	backoffBase time.Duration
	logger      *zap.Logger
}

func NewPublisher(uow port.UnitOfWork, broker port.EventPublisher, breaker *resilience.Breaker,
	cfg *config.Outbox, logger *zap.Logger) (*Publisher, error) {
	return &Publisher{
		uow:         uow,
		broker:      broker,
		breaker:     breaker,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		logger:      logger,
	}, nil
}

func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	err := p.uow.Do(ctx, func(r port.Repositories) error {
		events, err := r.Outbox().ListPending(ctx, p.batchSize)
		if err != nil {
			return err
		}

		// Aggregates that failed earlier in this batch are skipped so their
		// later events cannot overtake the failed one.
		failedAggregates := make(map[string]struct{})

		for _, event := range events {
			if _, held := failedAggregates[event.AggregateID]; held {
				continue
			}

			if err := p.publishOne(ctx, r, event); err != nil {
				failedAggregates[event.AggregateID] = struct{}{}
				if errors.Is(err, domain.ErrCircuitOpen) {
					// Broker is down for everyone; stop the batch.
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		p.logger.Error("outbox drain failed", zap.Error(err))
	}
}

// publishOne attempts delivery of a single row and records the outcome. The
// returned error reports a publish failure; bookkeeping errors abort the
// transaction through the caller.
func (p *Publisher) publishOne(ctx context.Context, r port.Repositories, row *domain.OutboxEvent) error {
	var envelope domain.Event
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		p.logger.Error("outbox row payload undecodable, marking failed",
			zap.String("outbox_id", row.ID), zap.Error(err))
		if markErr := r.Outbox().MarkFailed(ctx, row.ID, row.Attempts); markErr != nil {
			p.logger.Error("mark outbox failed", zap.Error(markErr))
		}
		return err
	}

	pubErr := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.broker.Publish(ctx, envelope)
	})
	if pubErr == nil {
		return r.Outbox().MarkPublished(ctx, row.ID)
	}

	attempts := row.Attempts + 1
	if attempts >= p.maxAttempts {
		p.logger.Error("outbox event exhausted attempts, surfacing as FAILED",
			zap.String("outbox_id", row.ID),
			zap.String("event_type", string(row.EventType)),
			zap.Int32("attempts", attempts),
			zap.Error(pubErr))
		if err := r.Outbox().MarkFailed(ctx, row.ID, attempts); err != nil {
			p.logger.Error("mark outbox failed", zap.Error(err))
		}
		return pubErr
	}

	next := time.Now().Add(p.backoff(attempts))
	p.logger.Warn("outbox publish failed, rescheduling",
		zap.String("outbox_id", row.ID),
		zap.Int32("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(pubErr))
	if err := r.Outbox().Reschedule(ctx, row.ID, attempts, next); err != nil {
		p.logger.Error("reschedule outbox event", zap.Error(err))
	}
	return pubErr
}

// backoff doubles per attempt: base, 2*base, 4*base, ...
func (p *Publisher) backoff(attempts int32) time.Duration {
	d := p.backoffBase
	for i := int32(1); i < attempts; i++ {
		d *= 2
	}
	return d
}
