// Package memory implements an in-process publisher. It backs
// deployments without a Pub/Sub project, where sync-completed events
// only need to be visible to the process itself, and serves as the
// publisher double in tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event is one recorded sync notification.
type Event struct {
	Topic   string
	Payload any
}

// Publisher keeps every published event in memory.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty in-process Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("local-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Last returns the most recent event, if any.
func (p *Publisher) Last() (Event, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.events) == 0 {
		return Event{}, false
	}
	return p.events[len(p.events)-1], true
}
