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

type IdempotencyRepository struct {
	q  Querier
	qb *sq.StatementBuilderType
}

func (pr *IdempotencyRepository) Lookup(ctx context.Context, eventID string) (*domain.ProcessedEvent, error) {
	statement := pr.qb.
		Select("event_id", "event_type", "processed_at", "result").
		From("processed_events").
		Where(sq.Eq{"event_id": eventID})

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	rec := domain.ProcessedEvent{}
	err = pr.q.QueryRow(ctx, sql, args...).Scan(&rec.EventID, &rec.EventType,
		&rec.ProcessedAt, &rec.Result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDataNotFound
		}
		return nil, err
	}

	return &rec, nil
}

func (pr *IdempotencyRepository) Record(ctx context.Context, rec *domain.ProcessedEvent) error {
	statement := pr.qb.Insert("processed_events").
		Columns("event_id", "event_type", "processed_at", "result").
		Values(rec.EventID, rec.EventType, rec.ProcessedAt, rec.Result)

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}

	_, err = pr.q.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrConflictingData
		}
		return err
	}
	return nil
}
