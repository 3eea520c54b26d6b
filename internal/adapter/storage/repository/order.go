package repository

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
)

type OrderRepository struct {
	q  Querier
	qb *sq.StatementBuilderType
}

func (or *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	statement := or.qb.Insert("orders").
		Columns("id", "number", "user_id", "user_email",
			"subtotal", "tax", "shipping", "grand_total", "status", "created_at").
		Values(order.ID, order.Number, order.UserID, order.UserEmail,
			order.Totals.Subtotal, order.Totals.Tax, order.Totals.Shipping,
			order.Totals.GrandTotal, order.Status, order.CreatedAt)

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	_, err = or.q.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, domain.ErrConflictingData
		}
		return nil, err
	}

	for _, item := range order.Items {
		itemSt := or.qb.Insert("order_items").
			Columns("order_id", "product_id", "sku", "quantity", "unit_price", "subtotal").
			Values(order.ID, item.ProductID, item.SKU, item.Quantity, item.UnitPrice, item.Subtotal)
		sql, args, err = itemSt.ToSql()
		if err != nil {
			return nil, err
		}
		if _, err = or.q.Exec(ctx, sql, args...); err != nil {
			return nil, err
		}
	}

	for _, entry := range order.StatusHistory {
		if err := or.insertHistoryEntry(ctx, order.ID, entry); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func (or *OrderRepository) ReadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	statement := or.qb.
		Select("id", "number", "user_id", "user_email",
			"subtotal", "tax", "shipping", "grand_total", "status", "created_at").
		From("orders").
		Where(sq.Eq{"id": orderID})

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	order := domain.Order{}
	err = or.q.QueryRow(ctx, sql, args...).Scan(
		&order.ID,
		&order.Number,
		&order.UserID,
		&order.UserEmail,
		&order.Totals.Subtotal,
		&order.Totals.Tax,
		&order.Totals.Shipping,
		&order.Totals.GrandTotal,
		&order.Status,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDataNotFound
		}
		return nil, err
	}

	if order.Items, err = or.readItems(ctx, order.ID); err != nil {
		return nil, err
	}
	if order.StatusHistory, err = or.readHistory(ctx, order.ID); err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateOrderStatus persists the status column and appends the last history
// entry carried by the order value.
func (or *OrderRepository) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	statement := or.qb.Update("orders").
		Set("status", order.Status).
		Where(sq.Eq{"id": order.ID})

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}

	tag, err := or.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDataNotFound
	}

	if len(order.StatusHistory) == 0 {
		return nil
	}
	return or.insertHistoryEntry(ctx, order.ID, order.StatusHistory[len(order.StatusHistory)-1])
}

func (or *OrderRepository) ListOrdersByUser(ctx context.Context, userID uint64) ([]*domain.Order, error) {
	statement := or.qb.
		Select("id", "number", "user_id", "user_email",
			"subtotal", "tax", "shipping", "grand_total", "status", "created_at").
		From("orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC")

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := or.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*domain.Order, 0)
	for rows.Next() {
		order := domain.Order{}
		err := rows.Scan(
			&order.ID,
			&order.Number,
			&order.UserID,
			&order.UserEmail,
			&order.Totals.Subtotal,
			&order.Totals.Tax,
			&order.Totals.Shipping,
			&order.Totals.GrandTotal,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range list {
		if order.Items, err = or.readItems(ctx, order.ID); err != nil {
			return nil, err
		}
		if order.StatusHistory, err = or.readHistory(ctx, order.ID); err != nil {
			return nil, err
		}
	}

	return list, nil
}

func (or *OrderRepository) insertHistoryEntry(ctx context.Context, orderID string, entry domain.StatusEntry) error {
	statement := or.qb.Insert("order_status_history").
		Columns("order_id", "status", "previous_status", "note", "actor", "at").
		Values(orderID, entry.Status, entry.PreviousStatus, entry.Note, entry.Actor, entry.At)

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}
	_, err = or.q.Exec(ctx, sql, args...)
	return err
}

func (or *OrderRepository) readItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	statement := or.qb.
		Select("product_id", "sku", "quantity", "unit_price", "subtotal").
		From("order_items").
		Where(sq.Eq{"order_id": orderID})

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := or.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		item := domain.OrderItem{}
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Quantity,
			&item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (or *OrderRepository) readHistory(ctx context.Context, orderID string) ([]domain.StatusEntry, error) {
	statement := or.qb.
		Select("status", "previous_status", "note", "actor", "at").
		From("order_status_history").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id ASC")

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := or.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.StatusEntry, 0)
	for rows.Next() {
		entry := domain.StatusEntry{}
		if err := rows.Scan(&entry.Status, &entry.PreviousStatus, &entry.Note,
			&entry.Actor, &entry.At); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}
