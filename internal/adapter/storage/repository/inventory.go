package repository

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
)

type InventoryRepository struct {
	q  Querier
	qb *sq.StatementBuilderType
}

func (ir *InventoryRepository) ReadStock(ctx context.Context, productID, warehouseID string) (*domain.StockLevel, error) {
	statement := ir.qb.
		Select("product_id", "warehouse_id", "available").
		From("stock").
		Where(sq.Eq{"product_id": productID, "warehouse_id": warehouseID})

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	level := domain.StockLevel{}
	err = ir.q.QueryRow(ctx, sql, args...).Scan(&level.ProductID, &level.WarehouseID, &level.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDataNotFound
		}
		return nil, err
	}

	return &level, nil
}

// Reserve decrements stock with a conditional update so concurrent reservers
// cannot oversell, then inserts the reservation row. Statement order matters:
// nothing here raises a database error, so a per-line failure leaves the
// enclosing transaction usable for the remaining lines.
func (ir *InventoryRepository) Reserve(ctx context.Context, res *domain.Reservation) error {
	decSQL, decArgs, err := ir.qb.Update("stock").
		Set("available", sq.Expr("available - ?", res.QuantityReserved)).
		Where(sq.Eq{"product_id": res.ProductID, "warehouse_id": res.WarehouseID}).
		Where(sq.Expr("available >= ?", res.QuantityReserved)).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := ir.q.Exec(ctx, decSQL, decArgs...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := ir.ReadStock(ctx, res.ProductID, res.WarehouseID); err != nil {
			return err
		}
		return domain.ErrInsufficientStock
	}

	insSQL, insArgs, err := ir.qb.Insert("reservations").
		Columns("id", "order_id", "product_id", "warehouse_id",
			"qty_requested", "qty_reserved", "status", "expires_at", "created_at").
		Values(res.ID, res.OrderID, res.ProductID, res.WarehouseID,
			res.QuantityRequested, res.QuantityReserved, res.Status, res.ExpiresAt, res.CreatedAt).
		Suffix("ON CONFLICT (order_id, product_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}

	tag, err = ir.q.Exec(ctx, insSQL, insArgs...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Pair already reserved: hand the stock back and report the conflict.
		incSQL, incArgs, err := ir.qb.Update("stock").
			Set("available", sq.Expr("available + ?", res.QuantityReserved)).
			Where(sq.Eq{"product_id": res.ProductID, "warehouse_id": res.WarehouseID}).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := ir.q.Exec(ctx, incSQL, incArgs...); err != nil {
			return err
		}
		return domain.ErrConflictingData
	}

	return nil
}

func (ir *InventoryRepository) Release(ctx context.Context, orderID, productID string) (bool, error) {
	relSQL, relArgs, err := ir.qb.Update("reservations").
		Set("status", domain.ReservationStatusReleased).
		Where(sq.Eq{"order_id": orderID, "product_id": productID,
			"status": domain.ReservationStatusReserved}).
		Suffix("RETURNING qty_reserved, warehouse_id").
		ToSql()
	if err != nil {
		return false, err
	}

	var qty int32
	var warehouseID string
	err = ir.q.QueryRow(ctx, relSQL, relArgs...).Scan(&qty, &warehouseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	// Stock goes back to the warehouse the reservation was taken from.
	incSQL, incArgs, err := ir.qb.Update("stock").
		Set("available", sq.Expr("available + ?", qty)).
		Where(sq.Eq{"product_id": productID, "warehouse_id": warehouseID}).
		ToSql()
	if err != nil {
		return false, err
	}
	if _, err := ir.q.Exec(ctx, incSQL, incArgs...); err != nil {
		return false, err
	}

	return true, nil
}

func (ir *InventoryRepository) ListReservationsByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	statement := ir.qb.
		Select("id", "order_id", "product_id", "warehouse_id",
			"qty_requested", "qty_reserved", "status", "expires_at", "created_at").
		From("reservations").
		Where(sq.Eq{"order_id": orderID})

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := ir.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*domain.Reservation, 0)
	for rows.Next() {
		res := domain.Reservation{}
		err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.WarehouseID,
			&res.QuantityRequested, &res.QuantityReserved, &res.Status,
			&res.ExpiresAt, &res.CreatedAt)
		if err != nil {
			return nil, err
		}
		list = append(list, &res)
	}
	return list, rows.Err()
}
