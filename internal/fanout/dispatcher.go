package fanout

import (
	"context"
	"fmt"
	"log"

	"messaging-service/internal/models"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/ws"
)

// Deliverer hands a freshly persisted message to the live delivery path.
type Deliverer interface {
	Deliver(ctx context.Context, msg models.MessageView)
}

// Dispatcher routes persisted messages toward the recipient's connections.
// With a working broker the event goes through the topic exchange so that
// whichever instance holds the recipient's websocket picks it up; without one
// the dispatcher pushes straight into the local hub. Either way delivery is
// best effort and never surfaces to the HTTP caller.
type Dispatcher struct {
	publisher rabbitmq.Publisher
	hub       *ws.Hub
	local     bool
}

// NewDispatcher constructs a Dispatcher. A nil or noop publisher selects
// local-only delivery.
func NewDispatcher(publisher rabbitmq.Publisher, hub *ws.Hub) *Dispatcher {
	local := publisher == nil || rabbitmq.PublisherMode(publisher) == "noop"
	return &Dispatcher{publisher: publisher, hub: hub, local: local}
}

// Deliver fans the message out. Publish failures fall back to a local push;
// the message is already durable.
func (d *Dispatcher) Deliver(ctx context.Context, msg models.MessageView) {
	if d.local {
		d.hub.Push(msg)
		return
	}

	event := models.MessageEvent{Type: "message", Message: &msg}
	routingKey := fmt.Sprintf("user.%d", msg.To.ID)
	if err := d.publisher.Publish(ctx, routingKey, event); err != nil {
		log.Printf("fanout publish failed, delivering locally: %v", err)
		d.hub.Push(msg)
	}
}

var _ Deliverer = (*Dispatcher)(nil)
