package amqp

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"tueje/internal/events"
	applog "tueje/internal/log"
)

const outboxSize = 256

// Broker is the part of Client the relay needs.
type Broker interface {
	Publish(ctx context.Context, msg *EventMessage) error
	Consume(ctx context.Context, handler func(context.Context, *EventMessage) error) error
}

var _ Broker = (*Client)(nil)

// Relay mirrors the local bus onto the broker and back. Local events are
// queued and published in the background; failures are logged and dropped.
// Events from other instances are replayed on the local bus.
type Relay struct {
	broker     Broker
	bus        *events.Bus
	instanceID string
	outbox     chan events.Event
}

func NewRelay(broker Broker, bus *events.Bus) *Relay {
	return &Relay{
		broker:     broker,
		bus:        bus,
		instanceID: uuid.NewString(),
		outbox:     make(chan events.Event, outboxSize),
	}
}

// InstanceID identifies this process on the exchange.
func (r *Relay) InstanceID() string { return r.instanceID }

// Forward is a bus handler queueing local events for publication.
func (r *Relay) Forward(ctx context.Context, evt events.Event) {
	if evt.Origin != "" && evt.Origin != r.instanceID {
		return
	}
	select {
	case r.outbox <- evt:
	default:
		slog.WarnContext(ctx, "Event outbox full, dropping event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldUserID, evt.UserID,
			"reason", evt.Reason)
	}
}

// Run publishes queued events until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-r.outbox:
			if err := r.broker.Publish(ctx, NewEventMessage(evt, r.instanceID)); err != nil {
				slog.WarnContext(ctx, "Failed to relay event",
					applog.FieldComponent, applog.ComponentAMQP,
					applog.FieldUserID, evt.UserID,
					"reason", evt.Reason,
					applog.FieldError, err)
			}
		}
	}
}

// Listen replays events published by other instances on the local bus.
func (r *Relay) Listen(ctx context.Context) error {
	err := r.broker.Consume(ctx, func(ctx context.Context, msg *EventMessage) error {
		if msg.Origin == r.instanceID {
			return nil
		}
		r.bus.Publish(ctx, msg.Event())
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
