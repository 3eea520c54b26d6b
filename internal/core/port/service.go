package port

import (
	"context"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
)

//go:generate mockgen -source=service.go -destination=mock/service.go -package=mock
type OrderService interface {
	CreateOrder(ctx context.Context, userID uint64, email string, items []domain.OrderItem) (*domain.Order, error)
	CreateOrderFromCart(ctx context.Context, userID uint64, email, cartID, token string) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string, userID uint64) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID uint64) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string, userID uint64, reason string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, target domain.OrderStatus, note, actor string) (*domain.Order, error)
}
