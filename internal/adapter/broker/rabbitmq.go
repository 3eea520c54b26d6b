package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/adapter/config"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/domain"
	"github.com/maigscannabisclub-crypto/ecomerce-sub002/internal/core/port"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const dialRetries = 10

// RabbitMQ publishes and consumes saga events over one durable topic exchange.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func NewRabbitMQ(cfg *config.Broker, logger *zap.Logger) (*RabbitMQ, error) {
	var conn *amqp.Connection
	var err error

	// The broker may still be starting; retry before giving up.
	for i := 0; i < dialRetries; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		logger.Warn("failed to connect to RabbitMQ, retrying in 2s",
			zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

func (b *RabbitMQ) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	err = b.channel.PublishWithContext(ctx,
		b.exchange,
		event.EventType.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:     event.EventID,
			CorrelationId: event.CorrelationID,
			Type:          string(event.EventType),
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Timestamp:     event.Timestamp,
			Body:          body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventID, err)
	}

	return nil
}

// Subscribe binds a durable queue to the routing keys and pumps deliveries into
// handler on a separate channel. Handler success acks; handler error nacks with
// requeue, leaving retry to the broker.
func (b *RabbitMQ) Subscribe(ctx context.Context, queue string, routingKeys []string,
	handler port.EventHandler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", q.Name, key, err)
		}
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", q.Name, err)
	}

	go func() {
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Warn("delivery channel closed", zap.String("queue", queue))
					return
				}
				b.dispatch(ctx, queue, d, handler)
			}
		}
	}()

	return nil
}

func (b *RabbitMQ) dispatch(ctx context.Context, queue string, d amqp.Delivery,
	handler port.EventHandler) {
	var event domain.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		// Poison message, requeue would loop forever.
		b.logger.Error("dropping undecodable message",
			zap.String("queue", queue),
			zap.String("message_id", d.MessageId),
			zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, event); err != nil {
		b.logger.Error("event handler failed, requeueing",
			zap.String("queue", queue),
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (b *RabbitMQ) Close() {
	_ = b.channel.Close()
	_ = b.conn.Close()
}
