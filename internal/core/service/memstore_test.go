package service_test

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
)

// memState is an in-memory stand-in for one service's database.
type memState struct {
	orders       map[string]domain.Order
	stock        map[string]int32
	reservations map[string]domain.Reservation
	outbox       []domain.OutboxEvent
	processed    map[string]domain.ProcessedEvent
}

func newMemState() *memState {
	return &memState{
		orders:       make(map[string]domain.Order),
		stock:        make(map[string]int32),
		reservations: make(map[string]domain.Reservation),
		processed:    make(map[string]domain.ProcessedEvent),
	}
}

func (s *memState) clone() *memState {
	next := newMemState()
	for id, o := range s.orders {
		next.orders[id] = copyOrder(o)
	}
	for id, qty := range s.stock {
		next.stock[id] = qty
	}
	for key, res := range s.reservations {
		next.reservations[key] = res
	}
	next.outbox = make([]domain.OutboxEvent, len(s.outbox))
	copy(next.outbox, s.outbox)
	for id, rec := range s.processed {
		next.processed[id] = rec
	}
	return next
}

func copyOrder(o domain.Order) domain.Order {
	out := o
	out.Items = append([]domain.OrderItem(nil), o.Items...)
	out.StatusHistory = append([]domain.StatusEntry(nil), o.StatusHistory...)
	return out
}

func resKey(orderID, productID string) string {
	return orderID + "|" + productID
}

// stockKey mirrors the composite primary key of the stock table.
func stockKey(productID, warehouseID string) string {
	return productID + "@" + warehouseID
}

// memUoW implements port.UnitOfWork with snapshot semantics: fn runs against a
// clone of the state, which replaces the live state only when fn returns nil.
// It also implements port.Repositories for the pool-bound read path.
type memUoW struct {
	state      *memState
	enqueueErr error
}

func newMemUoW() *memUoW {
	return &memUoW{state: newMemState()}
}

func (u *memUoW) Do(_ context.Context, fn func(r port.Repositories) error) error {
	trial := u.state.clone()
	if err := fn(&memRepos{u: u, s: trial}); err != nil {
		return err
	}
	u.state = trial
	return nil
}

func (u *memUoW) Orders() port.OrderRepository            { return &memOrderRepo{u: u, s: u.state} }
func (u *memUoW) Inventory() port.InventoryRepository     { return &memInventoryRepo{s: u.state} }
func (u *memUoW) Outbox() port.OutboxRepository           { return &memOutboxRepo{u: u, s: u.state} }
func (u *memUoW) Idempotency() port.IdempotencyRepository { return &memIdempotencyRepo{s: u.state} }

type memRepos struct {
	u *memUoW
	s *memState
}

func (r *memRepos) Orders() port.OrderRepository            { return &memOrderRepo{u: r.u, s: r.s} }
func (r *memRepos) Inventory() port.InventoryRepository     { return &memInventoryRepo{s: r.s} }
func (r *memRepos) Outbox() port.OutboxRepository           { return &memOutboxRepo{u: r.u, s: r.s} }
func (r *memRepos) Idempotency() port.IdempotencyRepository { return &memIdempotencyRepo{s: r.s} }

type memOrderRepo struct {
	u *memUoW
	s *memState
}

func (r *memOrderRepo) CreateOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if _, ok := r.s.orders[order.ID]; ok {
		return nil, domain.ErrConflictingData
	}
	r.s.orders[order.ID] = copyOrder(*order)
	return order, nil
}

func (r *memOrderRepo) ReadOrder(_ context.Context, orderID string) (*domain.Order, error) {
	stored, ok := r.s.orders[orderID]
	if !ok {
		return nil, domain.ErrDataNotFound
	}
	out := copyOrder(stored)
	return &out, nil
}

func (r *memOrderRepo) UpdateOrderStatus(_ context.Context, order *domain.Order) error {
	stored, ok := r.s.orders[order.ID]
	if !ok {
		return domain.ErrDataNotFound
	}
	stored.Status = order.Status
	if n := len(order.StatusHistory); n > 0 {
		stored.StatusHistory = append(stored.StatusHistory, order.StatusHistory[n-1])
	}
	r.s.orders[order.ID] = stored
	return nil
}

func (r *memOrderRepo) ListOrdersByUser(_ context.Context, userID uint64) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			c := copyOrder(o)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memInventoryRepo struct {
	s *memState
}

func (r *memInventoryRepo) ReadStock(_ context.Context, productID, warehouseID string) (*domain.StockLevel, error) {
	available, ok := r.s.stock[stockKey(productID, warehouseID)]
	if !ok {
		return nil, domain.ErrDataNotFound
	}
	return &domain.StockLevel{ProductID: productID, WarehouseID: warehouseID, Available: available}, nil
}

func (r *memInventoryRepo) Reserve(_ context.Context, res *domain.Reservation) error {
	if _, ok := r.s.reservations[resKey(res.OrderID, res.ProductID)]; ok {
		return domain.ErrConflictingData
	}
	available, ok := r.s.stock[stockKey(res.ProductID, res.WarehouseID)]
	if !ok {
		return domain.ErrDataNotFound
	}
	if available < res.QuantityRequested {
		return domain.ErrInsufficientStock
	}
	r.s.stock[stockKey(res.ProductID, res.WarehouseID)] = available - res.QuantityRequested
	r.s.reservations[resKey(res.OrderID, res.ProductID)] = *res
	return nil
}

func (r *memInventoryRepo) Release(_ context.Context, orderID, productID string) (bool, error) {
	res, ok := r.s.reservations[resKey(orderID, productID)]
	if !ok || res.Status != domain.ReservationStatusReserved {
		return false, nil
	}
	res.Status = domain.ReservationStatusReleased
	r.s.reservations[resKey(orderID, productID)] = res
	r.s.stock[stockKey(productID, res.WarehouseID)] += res.QuantityReserved
	return true, nil
}

func (r *memInventoryRepo) ListReservationsByOrder(_ context.Context, orderID string) ([]*domain.Reservation, error) {
	var out []*domain.Reservation
	for key, res := range r.s.reservations {
		if strings.HasPrefix(key, orderID+"|") {
			c := res
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

type memOutboxRepo struct {
	u *memUoW
	s *memState
}

func (r *memOutboxRepo) Enqueue(_ context.Context, event *domain.OutboxEvent) error {
	if r.u != nil && r.u.enqueueErr != nil {
		return r.u.enqueueErr
	}
	r.s.outbox = append(r.s.outbox, *event)
	return nil
}

func (r *memOutboxRepo) ListPending(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	now := time.Now()
	var due []*domain.OutboxEvent
	for i := range r.s.outbox {
		row := &r.s.outbox[i]
		if row.Status != domain.OutboxStatusPending || row.NextAttemptAt.After(now) {
			continue
		}
		if r.earlierPendingExists(row) {
			continue
		}
		due = append(due, row)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*domain.OutboxEvent, len(due))
	for i, row := range due {
		c := *row
		out[i] = &c
	}
	return out, nil
}

func (r *memOutboxRepo) earlierPendingExists(row *domain.OutboxEvent) bool {
	for i := range r.s.outbox {
		other := &r.s.outbox[i]
		if other.ID != row.ID && other.AggregateID == row.AggregateID &&
			other.Status == domain.OutboxStatusPending && other.CreatedAt.Before(row.CreatedAt) {
			return true
		}
	}
	return false
}

func (r *memOutboxRepo) MarkPublished(_ context.Context, id string) error {
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			now := time.Now()
			r.s.outbox[i].Status = domain.OutboxStatusPublished
			r.s.outbox[i].PublishedAt = &now
			return nil
		}
	}
	return domain.ErrDataNotFound
}

func (r *memOutboxRepo) Reschedule(_ context.Context, id string, attempts int32, nextAttempt time.Time) error {
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			r.s.outbox[i].Attempts = attempts
			r.s.outbox[i].NextAttemptAt = nextAttempt
			return nil
		}
	}
	return domain.ErrDataNotFound
}

func (r *memOutboxRepo) MarkFailed(_ context.Context, id string, attempts int32) error {
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			r.s.outbox[i].Status = domain.OutboxStatusFailed
			r.s.outbox[i].Attempts = attempts
			return nil
		}
	}
	return domain.ErrDataNotFound
}

type memIdempotencyRepo struct {
	s *memState
}

func (r *memIdempotencyRepo) Lookup(_ context.Context, eventID string) (*domain.ProcessedEvent, error) {
	rec, ok := r.s.processed[eventID]
	if !ok {
		return nil, domain.ErrDataNotFound
	}
	c := rec
	return &c, nil
}

func (r *memIdempotencyRepo) Record(_ context.Context, rec *domain.ProcessedEvent) error {
	if _, ok := r.s.processed[rec.EventID]; ok {
		return domain.ErrConflictingData
	}
	r.s.processed[rec.EventID] = *rec
	return nil
}
