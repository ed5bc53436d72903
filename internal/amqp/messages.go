package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"tueje/internal/events"
)

// messageVersion is bumped when EventMessage changes shape.
const messageVersion = 1

// EventMessage is the wire form of a data-changed event. It carries only
// routing data; consumers read the records themselves.
type EventMessage struct {
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	UserID    string    `json:"userId"`
	Reason    string    `json:"reason,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEventMessage wraps evt, stamping the publishing instance.
func NewEventMessage(evt events.Event, origin string) *EventMessage {
	at := evt.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &EventMessage{
		Version:   messageVersion,
		Name:      evt.Name,
		UserID:    evt.UserID,
		Reason:    evt.Reason,
		Origin:    origin,
		Timestamp: at,
	}
}

// Event converts the message back into a bus event.
func (m *EventMessage) Event() events.Event {
	return events.Event{
		Name:   m.Name,
		UserID: m.UserID,
		Reason: m.Reason,
		At:     m.Timestamp,
		Origin: m.Origin,
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON creates a message from JSON bytes
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Name != events.DataChanged {
		return nil, fmt.Errorf("unexpected event name %q", msg.Name)
	}
	return &msg, nil
}
