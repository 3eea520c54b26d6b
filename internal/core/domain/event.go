package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderCreated           EventType = "OrderCreated"
	EventOrderFailed            EventType = "OrderFailed"
	EventOrderCancelled         EventType = "OrderCancelled"
	EventStockReserved          EventType = "StockReserved"
	EventStockReservationFailed EventType = "StockReservationFailed"
)

var eventRoutingKeys = map[EventType]string{
	EventOrderCreated:           "order.created",
	EventOrderFailed:            "order.failed",
	EventOrderCancelled:         "order.cancelled",
	EventStockReserved:          "stock.reserved",
	EventStockReservationFailed: "stock.reservation_failed",
}

func (t EventType) RoutingKey() string {
	return eventRoutingKeys[t]
}

// Event is the broker envelope. EventID is the consumer-side dedup key.
type Event struct {
	EventID       string          `json:"eventId"`
	EventType     EventType       `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
	AggregateID   string          `json:"aggregateId"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEvent(eventType EventType, aggregateID, correlationID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
		AggregateID:   aggregateID,
		Payload:       raw,
	}, nil
}

type EventItem struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"orderId"`
	Items      []EventItem `json:"items"`
	CustomerID string      `json:"customerId"`
}

type StockReservedPayload struct {
	OrderID string `json:"orderId"`
}

type ReservationFailure struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

type StockReservationFailedPayload struct {
	OrderID string               `json:"orderId"`
	Items   []EventItem          `json:"items"`
	Reason  string               `json:"reason"`
	Details []ReservationFailure `json:"details"`
}

// OrderClosedPayload is shared by OrderFailed and OrderCancelled. Both drive the
// same reservation release path in the inventory service.
type OrderClosedPayload struct {
	OrderID string      `json:"orderId"`
	Items   []EventItem `json:"items"`
	Reason  string      `json:"reason"`
}
