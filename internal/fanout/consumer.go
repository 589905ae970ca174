package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"messaging-service/internal/models"
	"messaging-service/internal/ws"
)

// Consumer binds an instance-local queue to the fan-out exchange and pushes
// incoming message events into this instance's hub. Every instance consumes
// the full user.* stream; pushes for users without a local connection are
// dropped by the hub.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	hub   *ws.Hub
}

// NewConsumer dials the broker and declares the instance queue.
func NewConsumer(amqpURL, exchange, queueName string, hub *ws.Hub) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("fanout: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("fanout: channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		false, // instance-scoped, nothing to replay after restart
		true,  // auto-delete
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("fanout: declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "user.*", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("fanout: bind queue: %w", err)
	}

	return &Consumer{conn: conn, ch: ch, queue: q.Name, hub: hub}, nil
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("fanout: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("fanout: delivery channel closed")
			}
			var event models.MessageEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				log.Printf("fanout: dropping malformed event: %v", err)
				continue
			}
			if event.Type != "message" || event.Message == nil {
				continue
			}
			c.hub.Push(*event.Message)
		}
	}
}

// Close tears the consumer down.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
