package port

import (
	"context"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
)

//go:generate mockgen -source=broker.go -destination=mock/broker.go -package=mock
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// EventHandler acknowledges the delivery by returning nil. A non-nil error
// leaves the message to the broker's redelivery mechanics.
type EventHandler func(ctx context.Context, event domain.Event) error

type EventSubscriber interface {
	Subscribe(ctx context.Context, queue string, routingKeys []string, handler EventHandler) error
}
