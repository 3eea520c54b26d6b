package port

import (
	"context"
	"time"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	ReadOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// UpdateOrderStatus persists the order's current status and the last
	// appended history entry.
	UpdateOrderStatus(ctx context.Context, order *domain.Order) error
	ListOrdersByUser(ctx context.Context, userID uint64) ([]*domain.Order, error)
}

type InventoryRepository interface {
	ReadStock(ctx context.Context, productID, warehouseID string) (*domain.StockLevel, error)
	// Reserve decrements available stock and inserts the reservation row.
	// Returns domain.ErrInsufficientStock when the conditional decrement
	// matches no row, domain.ErrConflictingData when the (order, product)
	// pair is already reserved.
	Reserve(ctx context.Context, res *domain.Reservation) error
	// Release returns the reserved quantity to stock and marks the
	// reservation RELEASED. Reports false when there was nothing left to
	// release, which makes a second release a no-op.
	Release(ctx context.Context, orderID, productID string) (bool, error)
	ListReservationsByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error)
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error
	// ListPending selects due PENDING rows in creation order, locking them
	// against concurrent drainers.
	ListPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int32, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int32) error
}

type IdempotencyRepository interface {
	// Lookup returns domain.ErrDataNotFound for a first-seen event id.
	Lookup(ctx context.Context, eventID string) (*domain.ProcessedEvent, error)
	Record(ctx context.Context, rec *domain.ProcessedEvent) error
}

// Repositories bundles the stores bound to one transaction.
type Repositories interface {
	Orders() OrderRepository
	Inventory() InventoryRepository
	Outbox() OutboxRepository
	Idempotency() IdempotencyRepository
}

// UnitOfWork is the explicit atomic-commit boundary. Everything fn does through
// the passed repositories commits or rolls back as a whole.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(r Repositories) error) error
}
