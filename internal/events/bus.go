// Package events carries the single "data changed" notification from writers
// to whoever renders or mirrors the affected user's data.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	applog "tueje/internal/log"
)

// DataChanged is the one event name the application emits.
const DataChanged = "tueje:data-changed"

// Reasons attached to an event. They only help subscribers route it.
const (
	ReasonHabits       = "habits"
	ReasonHabitLogs    = "habit_logs"
	ReasonTransactions = "transactions"
	ReasonLogin        = "login"
	ReasonLogout       = "logout"
	ReasonFederated    = "federated_sync"
)

type Event struct {
	Name   string    `json:"name"`
	UserID string    `json:"userId,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
	// Origin identifies the instance that published the event.
	Origin string `json:"origin,omitempty"`
}

// NewEvent stamps a DataChanged event.
func NewEvent(userID, reason string) Event {
	return Event{Name: DataChanged, UserID: userID, Reason: reason, At: time.Now().UTC()}
}

type Handler func(ctx context.Context, evt Event)

// Publisher is what writers depend on.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Bus delivers events synchronously to every subscriber in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
	order  []int
}

var _ Publisher = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers fn and returns a function that removes it again.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish calls every subscriber. A panicking subscriber is logged and
// skipped so the writer never sees it.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.Name == "" {
		evt.Name = DataChanged
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(ctx, h, evt)
	}
}

func deliver(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Event subscriber panicked",
				applog.FieldComponent, applog.ComponentEvents,
				applog.FieldEvent, evt.Name,
				"panic", r)
		}
	}()
	h(ctx, evt)
}

// Subscribers reports how many handlers are registered.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
