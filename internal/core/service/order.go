package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"go.uber.org/zap"
)

const actorSystem = "system"

type OrderService struct {
	repo     port.Repositories
	uow      port.UnitOfWork
	cart     port.CartClient
	taxRate  decimal.Decimal
	shipping decimal.Decimal
	logger   *zap.Logger
}

func NewOrderService(repo port.Repositories, uow port.UnitOfWork, cart port.CartClient,
	taxRate, shipping decimal.Decimal, logger *zap.Logger) (*OrderService, error) {
	return &OrderService{
		repo:     repo,
		uow:      uow,
		cart:     cart,
		taxRate:  taxRate,
		shipping: shipping,
		logger:   logger,
	}, nil
}

// CreateOrder accepts the order in PENDING and enqueues OrderCreated in the
// same transaction. The reservation outcome arrives later through the saga and
// is visible only via order status.
func (s *OrderService) CreateOrder(ctx context.Context, userID uint64, email string,
	items []domain.OrderItem) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	// Subtotals are written per line below; work on a copy so the caller's
	// slice stays untouched.
	items = append([]domain.OrderItem(nil), items...)
	for i := range items {
		if items[i].Quantity <= 0 {
			return nil, domain.ErrBadQuantity
		}
		line, err := domain.LineSubtotal(items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line subtotal: %w", err)
		}
		items[i].Subtotal = line
	}

	totals, err := domain.CalculateTotals(items, s.taxRate, s.shipping)
	if err != nil {
		return nil, fmt.Errorf("calculate totals: %w", err)
	}

	now := time.Now()
	order := &domain.Order{
		ID:        uuid.NewString(),
		Number:    newOrderNumber(now),
		UserID:    userID,
		UserEmail: email,
		Items:     items,
		Totals:    totals,
		Status:    domain.OrderStatusPending,
		StatusHistory: []domain.StatusEntry{{
			Status: domain.OrderStatusPending,
			Note:   "order accepted",
			Actor:  actorUser(userID),
			At:     now,
		}},
		CreatedAt: now,
	}

	event, err := domain.NewEvent(domain.EventOrderCreated, order.ID, order.ID,
		domain.OrderCreatedPayload{
			OrderID:    order.ID,
			Items:      eventItems(order.Items),
			CustomerID: strconv.FormatUint(userID, 10),
		})
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(r port.Repositories) error {
		if _, err := r.Orders().CreateOrder(ctx, order); err != nil {
			return err
		}
		row, err := outboxRow(event)
		if err != nil {
			return err
		}
		return r.Outbox().Enqueue(ctx, row)
	})
	if err != nil {
		s.logger.Error("create order", zap.Error(err))
		return nil, err
	}

	return order, nil
}

// CreateOrderFromCart converts the user's cart into an order. The cart service
// call goes through the circuit-breaker-guarded client.
func (s *OrderService) CreateOrderFromCart(ctx context.Context, userID uint64, email,
	cartID, token string) (*domain.Order, error) {
	cart, err := s.cart.GetCart(ctx, cartID, token)
	if err != nil {
		s.logger.Error("get cart", zap.String("cart_id", cartID), zap.Error(err))
		return nil, err
	}
	if cart.UserID != userID {
		return nil, domain.ErrCartOwnership
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		items = append(items, domain.OrderItem{
			ProductID: ci.ProductID,
			SKU:       ci.SKU,
			Quantity:  ci.Quantity,
			UnitPrice: ci.UnitPrice,
		})
	}

	return s.CreateOrder(ctx, userID, email, items)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string, userID uint64) (*domain.Order, error) {
	order, err := s.repo.Orders().ReadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID uint64) ([]*domain.Order, error) {
	list, err := s.repo.Orders().ListOrdersByUser(ctx, userID)
	if err != nil {
		s.logger.Error("list orders for user", zap.Error(err))
		return nil, err
	}
	return list, nil
}

// CancelOrder moves a cancellable order to CANCELLED and enqueues
// OrderCancelled so the inventory service releases any reservations.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, userID uint64,
	reason string) (*domain.Order, error) {
	var cancelled domain.Order

	err := s.uow.Do(ctx, func(r port.Repositories) error {
		order, err := r.Orders().ReadOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return domain.ErrForbidden
		}
		if !order.IsCancellable() {
			return domain.ErrOrderNotCancellable
		}

		cancelled, err = order.TransitionTo(domain.OrderStatusCancelled, reason, actorUser(userID))
		if err != nil {
			return err
		}
		if err := r.Orders().UpdateOrderStatus(ctx, &cancelled); err != nil {
			return err
		}

		return enqueueOrderClosed(ctx, r, &cancelled, domain.EventOrderCancelled, reason)
	})
	if err != nil {
		return nil, err
	}

	return &cancelled, nil
}

// UpdateOrderStatus is the operator path. Transitions are enforced
// synchronously; a rejected one surfaces as ErrInvalidTransition.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string,
	target domain.OrderStatus, note, actor string) (*domain.Order, error) {
	var updated domain.Order

	err := s.uow.Do(ctx, func(r port.Repositories) error {
		order, err := r.Orders().ReadOrder(ctx, orderID)
		if err != nil {
			return err
		}

		updated, err = order.TransitionTo(target, note, actor)
		if err != nil {
			return err
		}
		if err := r.Orders().UpdateOrderStatus(ctx, &updated); err != nil {
			return err
		}

		// Terminal operator moves drive the same release path as the saga.
		switch target {
		case domain.OrderStatusCancelled:
			return enqueueOrderClosed(ctx, r, &updated, domain.EventOrderCancelled, note)
		case domain.OrderStatusFailed:
			return enqueueOrderClosed(ctx, r, &updated, domain.EventOrderFailed, note)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrDataNotFound) {
			s.logger.Error("update order status", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, err
	}

	return &updated, nil
}

func enqueueOrderClosed(ctx context.Context, r port.Repositories, order *domain.Order,
	eventType domain.EventType, reason string) error {
	event, err := domain.NewEvent(eventType, order.ID, order.ID, domain.OrderClosedPayload{
		OrderID: order.ID,
		Items:   eventItems(order.Items),
		Reason:  reason,
	})
	if err != nil {
		return err
	}
	row, err := outboxRow(event)
	if err != nil {
		return err
	}
	return r.Outbox().Enqueue(ctx, row)
}

// outboxRow wraps the envelope into a PENDING outbox record due immediately.
func outboxRow(event domain.Event) (*domain.OutboxEvent, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event envelope: %w", err)
	}
	now := time.Now()
	return &domain.OutboxEvent{
		ID:            event.EventID,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       raw,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, nil
}

func eventItems(items []domain.OrderItem) []domain.EventItem {
	out := make([]domain.EventItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.EventItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func newOrderNumber(t time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", strings.ToUpper(strconv.FormatInt(t.Unix(), 36)), id[:8])
}

func actorUser(userID uint64) string {
	return "user:" + strconv.FormatUint(userID, 10)
}
