// Package membus provides an in-memory ledger.EventBus that records
// published events for assertions in tests, instead of delivering them
// anywhere.
package membus

import (
	"context"
	"sync"

	"github.com/wisbric/lifebank/internal/ledger"
)

// Event is one recorded publication.
type Event struct {
	Topic   [2]string
	Payload any
}

// Bus is a goroutine-safe in-memory ledger.EventBus.
type Bus struct {
	mu     sync.Mutex
	events []Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Publish implements ledger.EventBus.
func (b *Bus) Publish(_ context.Context, topic [2]string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{Topic: topic, Payload: payload})
	return nil
}

// Events returns a snapshot of all events published so far.
func (b *Bus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

var _ ledger.EventBus = (*Bus)(nil)
