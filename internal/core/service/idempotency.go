package service

import (
	"context"
	"errors"
	"time"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

// IdempotentProcessor makes event handlers safe under at-least-once delivery.
// The handler runs inside one unit of work together with the processed-event
// record, so a handler failure rolls back both and the broker retries from
// scratch.
type IdempotentProcessor struct {
	uow    port.UnitOfWork
	logger *zap.Logger
}

func NewIdempotentProcessor(uow port.UnitOfWork, logger *zap.Logger) (*IdempotentProcessor, error) {
	return &IdempotentProcessor{uow: uow, logger: logger}, nil
}

// Process invokes handler once per event id. A duplicate delivery returns the
// stored result without invoking handler; the second return value reports that
// replay.
func (p *IdempotentProcessor) Process(ctx context.Context, event domain.Event,
	handler func(ctx context.Context, r port.Repositories) ([]byte, error)) ([]byte, bool, error) {

	var result []byte
	var replayed bool

	err := p.uow.Do(ctx, func(r port.Repositories) error {
		rec, err := r.Idempotency().Lookup(ctx, event.EventID)
		if err == nil {
			p.logger.Info("duplicate event delivery, replaying stored result",
				zap.String("event_id", event.EventID),
				zap.String("event_type", string(event.EventType)))
			result = rec.Result
			replayed = true
			return nil
		}
		if !errors.Is(err, domain.ErrDataNotFound) {
			return err
		}

		result, err = handler(ctx, r)
		if err != nil {
			return err
		}

		return r.Idempotency().Record(ctx, &domain.ProcessedEvent{
			EventID:     event.EventID,
			EventType:   event.EventType,
			ProcessedAt: time.Now(),
			Result:      result,
		})
	})
	if err != nil {
		return nil, false, err
	}

	return result, replayed, nil
}
