package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/resilience"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port/mock"
)

// stubUoW backs the publisher with an in-memory outbox table. Do runs fn
// directly; the publisher's bookkeeping does not depend on rollback.
type stubUoW struct {
	rows []domain.OutboxEvent
}

func (u *stubUoW) Do(_ context.Context, fn func(r port.Repositories) error) error { return fn(u) }

func (u *stubUoW) Orders() port.OrderRepository            { return nil }
func (u *stubUoW) Inventory() port.InventoryRepository     { return nil }
func (u *stubUoW) Idempotency() port.IdempotencyRepository { return nil }
func (u *stubUoW) Outbox() port.OutboxRepository           { return (*stubOutbox)(u) }

type stubOutbox stubUoW

func (s *stubOutbox) Enqueue(_ context.Context, event *domain.OutboxEvent) error {
	s.rows = append(s.rows, *event)
	return nil
}

func (s *stubOutbox) ListPending(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	now := time.Now()
	var due []*domain.OutboxEvent
	for i := range s.rows {
		row := &s.rows[i]
		if row.Status != domain.OutboxStatusPending || row.NextAttemptAt.After(now) {
			continue
		}
		blocked := false
		for j := range s.rows {
			other := &s.rows[j]
			if other.ID != row.ID && other.AggregateID == row.AggregateID &&
				other.Status == domain.OutboxStatusPending && other.CreatedAt.Before(row.CreatedAt) {
				blocked = true
			}
		}
		if blocked {
			continue
		}
		c := *row
		due = append(due, &c)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *stubOutbox) MarkPublished(_ context.Context, id string) error {
	for i := range s.rows {
		if s.rows[i].ID == id {
			now := time.Now()
			s.rows[i].Status = domain.OutboxStatusPublished
			s.rows[i].PublishedAt = &now
			return nil
		}
	}
	return domain.ErrDataNotFound
}

func (s *stubOutbox) Reschedule(_ context.Context, id string, attempts int32, nextAttempt time.Time) error {
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Attempts = attempts
			s.rows[i].NextAttemptAt = nextAttempt
			return nil
		}
	}
	return domain.ErrDataNotFound
}

func (s *stubOutbox) MarkFailed(_ context.Context, id string, attempts int32) error {
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Status = domain.OutboxStatusFailed
			s.rows[i].Attempts = attempts
			return nil
		}
	}
	return domain.ErrDataNotFound
}

var errPublish = errors.New("publish failed")

func pendingRow(t *testing.T, aggregateID string, createdAt time.Time) domain.OutboxEvent {
	t.Helper()
	event, err := domain.NewEvent(domain.EventOrderCreated, aggregateID, aggregateID,
		domain.OrderCreatedPayload{OrderID: aggregateID})
	require.NoError(t, err)
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return domain.OutboxEvent{
		ID:            event.EventID,
		AggregateID:   aggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     createdAt,
		NextAttemptAt: createdAt,
	}
}

func newTestPublisher(t *testing.T, uow port.UnitOfWork, broker port.EventPublisher) *Publisher {
	t.Helper()
	breaker, err := resilience.NewBreaker(resilience.Config{
		Name:             "broker",
		FailureThreshold: 100,
		ResetTimeout:     time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)

	pub, err := NewPublisher(uow, broker, breaker, &config.Outbox{
		Interval:    time.Second,
		BatchSize:   10,
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return pub
}

func TestPublisherDrain(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	past := time.Now().Add(-time.Second)
	uow := &stubUoW{rows: []domain.OutboxEvent{
		pendingRow(t, "order-1", past),
		pendingRow(t, "order-2", past.Add(time.Millisecond)),
	}}

	var published []domain.Event
	broker := mock.NewMockEventPublisher(ctrl)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event domain.Event) error {
			published = append(published, event)
			return nil
		}).Times(2)

	pub := newTestPublisher(t, uow, broker)
	pub.drain(context.Background())

	require.Len(t, published, 2)
	assert.Equal(t, uow.rows[0].ID, published[0].EventID)
	for _, row := range uow.rows {
		assert.Equal(t, domain.OutboxStatusPublished, row.Status)
		assert.NotNil(t, row.PublishedAt)
	}
}

func TestPublisherReschedulesOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	past := time.Now().Add(-time.Second)
	uow := &stubUoW{rows: []domain.OutboxEvent{pendingRow(t, "order-1", past)}}

	broker := mock.NewMockEventPublisher(ctrl)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errPublish).Times(1)

	pub := newTestPublisher(t, uow, broker)
	pub.drain(context.Background())

	row := uow.rows[0]
	assert.Equal(t, domain.OutboxStatusPending, row.Status)
	assert.Equal(t, int32(1), row.Attempts)
	assert.True(t, row.NextAttemptAt.After(time.Now().Add(time.Second)),
		"next attempt pushed out by the backoff")
}

func TestPublisherMarksFailedAtCeiling(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	past := time.Now().Add(-time.Second)
	row := pendingRow(t, "order-1", past)
	row.Attempts = 2 // next failure hits MaxAttempts = 3
	uow := &stubUoW{rows: []domain.OutboxEvent{row}}

	broker := mock.NewMockEventPublisher(ctrl)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errPublish).Times(1)

	pub := newTestPublisher(t, uow, broker)
	pub.drain(context.Background())

	assert.Equal(t, domain.OutboxStatusFailed, uow.rows[0].Status)
	assert.Equal(t, int32(3), uow.rows[0].Attempts)
}

// A failed event blocks later events of the same aggregate from overtaking it.
func TestPublisherKeepsPerAggregateOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	past := time.Now().Add(-time.Second)
	first := pendingRow(t, "order-1", past)
	second := pendingRow(t, "order-1", past.Add(time.Millisecond))
	uow := &stubUoW{rows: []domain.OutboxEvent{first, second}}

	broker := mock.NewMockEventPublisher(ctrl)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errPublish).Times(1)

	pub := newTestPublisher(t, uow, broker)
	pub.drain(context.Background())

	assert.Equal(t, int32(1), uow.rows[0].Attempts)
	assert.Equal(t, int32(0), uow.rows[1].Attempts, "later event of the aggregate untouched")
	assert.Equal(t, domain.OutboxStatusPending, uow.rows[1].Status)
}

func TestPublisherSkipsNotDueRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	future := time.Now().Add(time.Hour)
	row := pendingRow(t, "order-1", time.Now().Add(-time.Second))
	row.NextAttemptAt = future
	uow := &stubUoW{rows: []domain.OutboxEvent{row}}

	broker := mock.NewMockEventPublisher(ctrl)

	pub := newTestPublisher(t, uow, broker)
	pub.drain(context.Background())

	assert.Equal(t, domain.OutboxStatusPending, uow.rows[0].Status)
}

func TestPublisherUndecodableRowFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	row := pendingRow(t, "order-1", time.Now().Add(-time.Second))
	row.Payload = []byte("{not json")
	uow := &stubUoW{rows: []domain.OutboxEvent{row}}

	broker := mock.NewMockEventPublisher(ctrl)

	pub := newTestPublisher(t, uow, broker)
	pub.drain(context.Background())

	assert.Equal(t, domain.OutboxStatusFailed, uow.rows[0].Status)
}

func TestPublisherBackoffDoubles(t *testing.T) {
	pub := newTestPublisher(t, &stubUoW{},
		mock.NewMockEventPublisher(gomock.NewController(t)))

	assert.Equal(t, 2*time.Second, pub.backoff(1))
	assert.Equal(t, 4*time.Second, pub.backoff(2))
	assert.Equal(t, 8*time.Second, pub.backoff(3))
}
