// Package events provides in-process pub/sub for reservation domain events.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types published by the engine.
const (
	TypeReservationCreated = "reservation.created"
	TypeReservationUpdated = "reservation.updated"
	TypeReservationDeleted = "reservation.deleted"
	TypeRegistryRenamed    = "registry.renamed"
	TypeWaterRecorded      = "water.recorded"
)

// ReservationEvent is the payload for reservation mutations.
type ReservationEvent struct {
	ID        string `json:"id"`
	UserName  string `json:"user_name"`
	Lab       string `json:"lab"`
	Equipment string `json:"equipment"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Overnight bool   `json:"overnight,omitempty"`
}

// RenameEvent is the payload for registry renames. Kind is "lab" or
// "equipment".
type RenameEvent struct {
	Kind string `json:"kind"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

// WaterEvent is the payload for purified-water ledger entries.
type WaterEvent struct {
	UserName string `json:"user_name"`
	Lab      string `json:"lab"`
	Amount   string `json:"amount"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON marshals the payload and publishes it. Marshal failures are
// returned to the caller, who typically logs and moves on.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
