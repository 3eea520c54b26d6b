package domain

import (
	"fmt"
	"time"

	"github.com/govalues/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusReserved  OrderStatus = "RESERVED"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// orderTransitions is the adjacency table of the order lifecycle. Any pair not
// listed here is invalid, self-transitions and exits from terminal states included.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusReserved, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusReserved:  {OrderStatusConfirmed, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusShipped},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusFailed:    {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func CanTransitionTo(current, target OrderStatus) bool {
	for _, next := range orderTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID string
	SKU       string
	Quantity  int32
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

type StatusEntry struct {
	Status         OrderStatus
	PreviousStatus OrderStatus
	Note           string
	Actor          string
	At             time.Time
}

type Totals struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	GrandTotal decimal.Decimal
}

type Order struct {
	ID            string
	Number        string
	UserID        uint64
	UserEmail     string
	Items         []OrderItem
	Totals        Totals
	Status        OrderStatus
	StatusHistory []StatusEntry
	CreatedAt     time.Time
}

// TransitionTo returns a copy of the order in the target status with exactly one
// history entry appended. The receiver is not modified.
func (o Order) TransitionTo(target OrderStatus, note, actor string) (Order, error) {
	if !CanTransitionTo(o.Status, target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}

	history := make([]StatusEntry, len(o.StatusHistory), len(o.StatusHistory)+1)
	copy(history, o.StatusHistory)

	next := o
	next.StatusHistory = append(history, StatusEntry{
		Status:         target,
		PreviousStatus: o.Status,
		Note:           note,
		Actor:          actor,
		At:             time.Now(),
	})
	next.Status = target

	return next, nil
}

func (o Order) IsCancellable() bool {
	return CanTransitionTo(o.Status, OrderStatusCancelled)
}

// CalculateTotals derives order money totals from the item lines. All math runs
// on decimals, money rounded to 2 places.
func CalculateTotals(items []OrderItem, taxRate, shipping decimal.Decimal) (Totals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		line, err := LineSubtotal(item.Quantity, item.UnitPrice)
		if err != nil {
			return Totals{}, fmt.Errorf("line subtotal for %s: %w", item.ProductID, err)
		}
		subtotal, err = subtotal.Add(line)
		if err != nil {
			return Totals{}, fmt.Errorf("math error: %w", err)
		}
	}

	tax, err := subtotal.Mul(taxRate)
	if err != nil {
		return Totals{}, fmt.Errorf("math error: %w", err)
	}
	tax = tax.Round(2)

	grand, err := subtotal.Add(tax)
	if err != nil {
		return Totals{}, fmt.Errorf("math error: %w", err)
	}
	grand, err = grand.Add(shipping)
	if err != nil {
		return Totals{}, fmt.Errorf("math error: %w", err)
	}

	return Totals{
		Subtotal:   subtotal.Round(2),
		Tax:        tax,
		Shipping:   shipping.Round(2),
		GrandTotal: grand.Round(2),
	}, nil
}

// LineSubtotal computes quantity * unitPrice for a single item line.
func LineSubtotal(quantity int32, unitPrice decimal.Decimal) (decimal.Decimal, error) {
	qty, err := decimal.New(int64(quantity), 0)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.Mul(unitPrice)
}
