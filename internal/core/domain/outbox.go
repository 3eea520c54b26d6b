package domain

import (
	"time"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a row of the transactional outbox. It is inserted in the same
// transaction as the domain mutation it describes and mutated only by the
// publisher loop afterwards.
type OutboxEvent struct {
	ID            string
	AggregateID   string
	EventType     EventType
	Payload       []byte
	Status        OutboxStatus
	Attempts      int32
	CreatedAt     time.Time
	NextAttemptAt time.Time
	PublishedAt   *time.Time
}
