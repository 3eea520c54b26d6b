package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

// reactionOutcome is the result snapshot stored for each processed event.
type reactionOutcome struct {
	Outcome string `json:"outcome"`
	OrderID string `json:"orderId"`
}

// OrderReactor consumes inventory events and drives the order state machine.
// Every handler runs through the idempotent processor, so redelivered events
// replay their stored outcome instead of transitioning twice.
type OrderReactor struct {
	proc   *IdempotentProcessor
	logger *zap.Logger
}

func NewOrderReactor(proc *IdempotentProcessor, logger *zap.Logger) (*OrderReactor, error) {
	return &OrderReactor{proc: proc, logger: logger}, nil
}

func (or *OrderReactor) Handle(ctx context.Context, event domain.Event) error {
	switch event.EventType {
	case domain.EventStockReserved:
		return or.handleStockReserved(ctx, event)
	case domain.EventStockReservationFailed:
		return or.handleReservationFailed(ctx, event)
	default:
		or.logger.Debug("ignoring event", zap.String("event_type", string(event.EventType)))
		return nil
	}
}

func (or *OrderReactor) handleStockReserved(ctx context.Context, event domain.Event) error {
	_, _, err := or.proc.Process(ctx, event, func(ctx context.Context, r port.Repositories) ([]byte, error) {
		var p domain.StockReservedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal StockReserved: %w", err)
		}

		order, err := r.Orders().ReadOrder(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}
		// A stale or raced event for an already-transitioned order is
		// skipped, not forced through the state machine.
		if order.Status != domain.OrderStatusPending {
			or.logger.Info("skipping StockReserved for non-pending order",
				zap.String("order_id", p.OrderID),
				zap.String("status", string(order.Status)))
			return outcome("skipped", p.OrderID)
		}

		reserved, err := order.TransitionTo(domain.OrderStatusReserved, "stock reserved", actorSystem)
		if err != nil {
			return nil, err
		}
		if err := r.Orders().UpdateOrderStatus(ctx, &reserved); err != nil {
			return nil, err
		}

		return outcome("reserved", p.OrderID)
	})
	return err
}

func (or *OrderReactor) handleReservationFailed(ctx context.Context, event domain.Event) error {
	_, _, err := or.proc.Process(ctx, event, func(ctx context.Context, r port.Repositories) ([]byte, error) {
		var p domain.StockReservationFailedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal StockReservationFailed: %w", err)
		}

		order, err := r.Orders().ReadOrder(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}

		failed, err := order.TransitionTo(domain.OrderStatusFailed, p.Reason, actorSystem)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				or.logger.Warn("skipping StockReservationFailed, transition rejected",
					zap.String("order_id", p.OrderID),
					zap.String("status", string(order.Status)))
				return outcome("skipped", p.OrderID)
			}
			return nil, err
		}
		if err := r.Orders().UpdateOrderStatus(ctx, &failed); err != nil {
			return nil, err
		}

		// OrderFailed triggers compensation: the inventory service releases
		// whichever line reservations did succeed.
		if err := enqueueOrderClosed(ctx, r, &failed, domain.EventOrderFailed, p.Reason); err != nil {
			return nil, err
		}

		return outcome("failed", p.OrderID)
	})
	return err
}

func outcome(kind, orderID string) ([]byte, error) {
	return json.Marshal(reactionOutcome{Outcome: kind, OrderID: orderID})
}
