package port

import (
	"context"

	"github.com/govalues/decimal"
)

type CartItem struct {
	ProductID string
	SKU       string
	Quantity  int32
	UnitPrice decimal.Decimal
}

type Cart struct {
	ID     string
	UserID uint64
	Items  []CartItem
}

//go:generate mockgen -source=cart.go -destination=mock/cart.go -package=mock
type CartClient interface {
	GetCart(ctx context.Context, cartID, token string) (*Cart, error)
}
