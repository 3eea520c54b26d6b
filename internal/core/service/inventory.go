package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

// InventoryService consumes order events, reserves or releases stock and emits
// the follow-up events through its own outbox.
type InventoryService struct {
	proc           *IdempotentProcessor
	warehouseID    string
	reservationTTL time.Duration
	logger         *zap.Logger
}

func NewInventoryService(proc *IdempotentProcessor, warehouseID string,
	reservationTTL time.Duration, logger *zap.Logger) (*InventoryService, error) {
	return &InventoryService{
		proc:           proc,
		warehouseID:    warehouseID,
		reservationTTL: reservationTTL,
		logger:         logger,
	}, nil
}

func (s *InventoryService) Handle(ctx context.Context, event domain.Event) error {
	switch event.EventType {
	case domain.EventOrderCreated:
		return s.handleOrderCreated(ctx, event)
	case domain.EventOrderFailed, domain.EventOrderCancelled:
		return s.handleOrderClosed(ctx, event)
	default:
		s.logger.Debug("ignoring event", zap.String("event_type", string(event.EventType)))
		return nil
	}
}

// handleOrderCreated reserves stock per line. Lines fail independently; any
// failed line makes the whole order emit StockReservationFailed while the
// successful reservations stay RESERVED until the compensating OrderFailed
// release arrives.
func (s *InventoryService) handleOrderCreated(ctx context.Context, event domain.Event) error {
	_, _, err := s.proc.Process(ctx, event, func(ctx context.Context, r port.Repositories) ([]byte, error) {
		var p domain.OrderCreatedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal OrderCreated: %w", err)
		}

		now := time.Now()
		var failures []domain.ReservationFailure
		for _, item := range p.Items {
			res := &domain.Reservation{
				ID:                uuid.NewString(),
				OrderID:           p.OrderID,
				ProductID:         item.ProductID,
				WarehouseID:       s.warehouseID,
				QuantityRequested: item.Quantity,
				QuantityReserved:  item.Quantity,
				Status:            domain.ReservationStatusReserved,
				ExpiresAt:         now.Add(s.reservationTTL),
				CreatedAt:         now,
			}

			err := r.Inventory().Reserve(ctx, res)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrConflictingData):
				// Already reserved for this (order, product) pair.
			case errors.Is(err, domain.ErrInsufficientStock):
				failures = append(failures, domain.ReservationFailure{
					ProductID: item.ProductID, Reason: "insufficient stock",
				})
			case errors.Is(err, domain.ErrDataNotFound):
				failures = append(failures, domain.ReservationFailure{
					ProductID: item.ProductID, Reason: "unknown product",
				})
			default:
				return nil, fmt.Errorf("reserve %s: %w", item.ProductID, err)
			}
		}

		var followUp domain.Event
		var err error
		if len(failures) > 0 {
			s.logger.Info("stock reservation failed",
				zap.String("order_id", p.OrderID), zap.Int("failed_lines", len(failures)))
			followUp, err = domain.NewEvent(domain.EventStockReservationFailed, p.OrderID,
				event.CorrelationID, domain.StockReservationFailedPayload{
					OrderID: p.OrderID,
					Items:   p.Items,
					Reason:  fmt.Sprintf("%d of %d lines could not be reserved", len(failures), len(p.Items)),
					Details: failures,
				})
		} else {
			followUp, err = domain.NewEvent(domain.EventStockReserved, p.OrderID,
				event.CorrelationID, domain.StockReservedPayload{OrderID: p.OrderID})
		}
		if err != nil {
			return nil, err
		}

		row, err := outboxRow(followUp)
		if err != nil {
			return nil, err
		}
		if err := r.Outbox().Enqueue(ctx, row); err != nil {
			return nil, err
		}

		return json.Marshal(reactionOutcome{Outcome: string(followUp.EventType), OrderID: p.OrderID})
	})
	return err
}

// handleOrderClosed releases every reservation held for the order. Releasing
// an already-released reservation is a no-op.
func (s *InventoryService) handleOrderClosed(ctx context.Context, event domain.Event) error {
	_, _, err := s.proc.Process(ctx, event, func(ctx context.Context, r port.Repositories) ([]byte, error) {
		var p domain.OrderClosedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", event.EventType, err)
		}

		reservations, err := r.Inventory().ListReservationsByOrder(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}

		released := 0
		for _, res := range reservations {
			done, err := r.Inventory().Release(ctx, res.OrderID, res.ProductID)
			if err != nil {
				return nil, fmt.Errorf("release %s: %w", res.ProductID, err)
			}
			if done {
				released++
			}
		}

		s.logger.Info("released order reservations",
			zap.String("order_id", p.OrderID),
			zap.String("trigger", string(event.EventType)),
			zap.Int("released", released))

		return json.Marshal(reactionOutcome{Outcome: "released", OrderID: p.OrderID})
	})
	return err
}
