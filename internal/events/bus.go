// Package events is the decoupling point between the HTTP layer and the
// services that own session policy. The HTTP layer only emits; subscribers
// decide what a session loss means.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// SessionExpired is broadcast when the current credential is no longer valid
const SessionExpired = "auth:session-expired"

// DefaultSessionExpiredMessage is the detail message used by the HTTP layer
const DefaultSessionExpiredMessage = "Your session has expired. Please log in again."

// Detail is the payload delivered with an event
type Detail struct {
	Message string
}

// Handler receives an emitted event
type Handler func(name string, detail Detail)

// Subscription identifies a registered handler. Pass it to Off to remove it.
type Subscription struct {
	name string
	id   uint64
}

type entry struct {
	id uint64
	fn Handler
}

// Bus is a name-keyed registry of handlers
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]entry
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]entry)}
}

// On registers fn for name
func (b *Bus) On(name string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[name] = append(b.handlers[name], entry{id: b.nextID, fn: fn})
	return Subscription{name: name, id: b.nextID}
}

// Off removes a handler. Unknown subscriptions are ignored.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[sub.name]
	for i, e := range list {
		if e.id == sub.id {
			b.handlers[sub.name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.name]) == 0 {
		delete(b.handlers, sub.name)
	}
}

// Emit calls every handler registered for name, in registration order, on
// the caller's goroutine. Handlers may call On/Off; changes apply to the
// next Emit.
func (b *Bus) Emit(name string, detail Detail) {
	b.mu.RLock()
	list := make([]entry, len(b.handlers[name]))
	copy(list, b.handlers[name])
	b.mu.RUnlock()

	log.Debug().Str("event", name).Int("handlers", len(list)).Msg("emitting event")

	for _, e := range list {
		e.fn(name, detail)
	}
}
