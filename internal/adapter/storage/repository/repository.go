package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/storage"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx, so
// the same repositories serve pool-bound reads and transaction-bound writes.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories implements port.Repositories over a single Querier.
type Repositories struct {
	orders      *OrderRepository
	inventory   *InventoryRepository
	outbox      *OutboxRepository
	idempotency *IdempotencyRepository
}

func NewRepositories(q Querier, qb *squirrel.StatementBuilderType) *Repositories {
	return &Repositories{
		orders:      &OrderRepository{q: q, qb: qb},
		inventory:   &InventoryRepository{q: q, qb: qb},
		outbox:      &OutboxRepository{q: q, qb: qb},
		idempotency: &IdempotencyRepository{q: q, qb: qb},
	}
}

func (r *Repositories) Orders() port.OrderRepository            { return r.orders }
func (r *Repositories) Inventory() port.InventoryRepository     { return r.inventory }
func (r *Repositories) Outbox() port.OutboxRepository           { return r.outbox }
func (r *Repositories) Idempotency() port.IdempotencyRepository { return r.idempotency }

// UnitOfWork runs a function with repositories bound to one pgx transaction.
type UnitOfWork struct {
	db *storage.DB
}

func NewUnitOfWork(db *storage.DB) (*UnitOfWork, error) {
	return &UnitOfWork{db: db}, nil
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(r port.Repositories) error) error {
	return pgx.BeginFunc(ctx, u.db, func(tx pgx.Tx) error {
		return fn(NewRepositories(tx, u.db.QueryBuilder))
	})
}
