package repository

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
)

type OutboxRepository struct {
	q  Querier
	qb *sq.StatementBuilderType
}

func (obr *OutboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	statement := obr.qb.Insert("outbox").
		Columns("id", "aggregate_id", "event_type", "payload",
			"status", "attempts", "created_at", "next_attempt_at").
		Values(event.ID, event.AggregateID, event.EventType, event.Payload,
			event.Status, event.Attempts, event.CreatedAt, event.NextAttemptAt)

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}

	_, err = obr.q.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.ErrConflictingData
		}
		return err
	}
	return nil
}

// ListPending selects due PENDING rows in creation order. SKIP LOCKED keeps a
// second drainer instance from picking up the same batch.
func (obr *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	statement := obr.qb.
		Select("id", "aggregate_id", "event_type", "payload",
			"status", "attempts", "created_at", "next_attempt_at").
		From("outbox").
		Where(sq.Eq{"status": domain.OutboxStatusPending}).
		Where(sq.Expr("next_attempt_at <= now()")).
		// Only the earliest pending event per aggregate is eligible, which
		// keeps per-aggregate publish order intact across retries.
		Where(sq.Expr("NOT EXISTS (SELECT 1 FROM outbox o2"+
			" WHERE o2.aggregate_id = outbox.aggregate_id"+
			" AND o2.status = ? AND o2.created_at < outbox.created_at)",
			domain.OutboxStatusPending)).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")

	sql, args, err := statement.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := obr.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]*domain.OutboxEvent, 0)
	for rows.Next() {
		event := domain.OutboxEvent{}
		err := rows.Scan(&event.ID, &event.AggregateID, &event.EventType, &event.Payload,
			&event.Status, &event.Attempts, &event.CreatedAt, &event.NextAttemptAt)
		if err != nil {
			return nil, err
		}
		list = append(list, &event)
	}
	return list, rows.Err()
}

func (obr *OutboxRepository) MarkPublished(ctx context.Context, id string) error {
	now := time.Now()
	statement := obr.qb.Update("outbox").
		Set("status", domain.OutboxStatusPublished).
		Set("published_at", now).
		Where(sq.Eq{"id": id})

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}
	_, err = obr.q.Exec(ctx, sql, args...)
	return err
}

func (obr *OutboxRepository) Reschedule(ctx context.Context, id string, attempts int32, nextAttempt time.Time) error {
	statement := obr.qb.Update("outbox").
		Set("attempts", attempts).
		Set("next_attempt_at", nextAttempt).
		Where(sq.Eq{"id": id})

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}
	_, err = obr.q.Exec(ctx, sql, args...)
	return err
}

func (obr *OutboxRepository) MarkFailed(ctx context.Context, id string, attempts int32) error {
	statement := obr.qb.Update("outbox").
		Set("status", domain.OutboxStatusFailed).
		Set("attempts", attempts).
		Where(sq.Eq{"id": id})

	sql, args, err := statement.ToSql()
	if err != nil {
		return err
	}
	_, err = obr.q.Exec(ctx, sql, args...)
	return err
}
