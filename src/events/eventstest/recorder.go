// Package eventstest captures bus traffic in tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/stellaria-pact/governance/src/events"
)

// Recorder keeps every envelope delivered on the channels it listens to.
type Recorder struct {
	mu   sync.Mutex
	envs []events.Envelope
}

// Record subscribes a new Recorder to names on bus.
func Record(bus *events.Bus, names ...events.Name) *Recorder {
	r := &Recorder{}
	for _, n := range names {
		bus.Subscribe(n, "recorder", func(_ context.Context, env events.Envelope) error {
			r.mu.Lock()
			r.envs = append(r.envs, env)
			r.mu.Unlock()
			return nil
		})
	}
	return r
}

// Names lists the recorded channel names in delivery order.
func (r *Recorder) Names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Name, 0, len(r.envs))
	for _, e := range r.envs {
		out = append(out, e.Name)
	}
	return out
}

// Count returns how many events were recorded on name.
func (r *Recorder) Count(name events.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.envs {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.envs = nil
	r.mu.Unlock()
}

// Last returns the most recent payload of type E.
func Last[E events.Event](r *Recorder) (E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.envs) - 1; i >= 0; i-- {
		if e, ok := r.envs[i].Payload.(E); ok {
			return e, true
		}
	}
	var zero E
	return zero, false
}
