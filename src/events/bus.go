// Package events is the in-process publish/subscribe bus between engines and
// listeners. Engines publish only after their unit of work committed.
package events

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Name identifies an event channel.
type Name string

// Event is a typed payload bound to one channel.
type Event interface {
	EventName() Name
}

// Envelope wraps a published event.
type Envelope struct {
	ID      uuid.UUID
	Name    Name
	At      time.Time
	Payload Event
}

// Handler consumes an envelope.
type Handler func(ctx context.Context, env Envelope) error

type subscription struct {
	label   string
	handler Handler
}

// Bus dispatches events synchronously to every subscriber in registration
// order. A failing subscriber is logged and does not stop the others.
type Bus struct {
	mu   sync.RWMutex
	subs map[Name][]subscription
	now  func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Name][]subscription), now: func() time.Time { return time.Now().UTC() }}
}

// Subscribe registers h for name. label shows up in logs.
func (b *Bus) Subscribe(name Name, label string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], subscription{label: label, handler: h})
}

// On registers a typed handler for the channel of E.
func On[E Event](b *Bus, label string, fn func(ctx context.Context, e E) error) {
	var zero E
	b.Subscribe(zero.EventName(), label, func(ctx context.Context, env Envelope) error {
		e, ok := env.Payload.(E)
		if !ok {
			return fmt.Errorf("events: %s got %T", env.Name, env.Payload)
		}
		return fn(ctx, e)
	})
}

// Publish delivers e to every subscriber and returns the envelope id.
func (b *Bus) Publish(ctx context.Context, e Event) uuid.UUID {
	env := Envelope{ID: uuid.New(), Name: e.EventName(), At: b.now(), Payload: e}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[env.Name]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, env, sub)
	}
	return env.ID
}

// PublishAll publishes events in order.
func (b *Bus) PublishAll(ctx context.Context, evs ...Event) {
	for _, e := range evs {
		if e != nil {
			b.Publish(ctx, e)
		}
	}
}

// Subscribers reports how many handlers listen on name.
func (b *Bus) Subscribers(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) deliver(ctx context.Context, env Envelope, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: %s handler %s panicked: %v\n%s", env.Name, sub.label, r, debug.Stack())
		}
	}()
	if err := sub.handler(ctx, env); err != nil {
		log.Printf("events: %s handler %s failed (event %s): %v", env.Name, sub.label, env.ID, err)
	}
}
