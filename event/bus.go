// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber event buffer size.
const DefaultBufferSize = 256

// Scope selects which events a subscription receives. The zero value
// receives everything.
type Scope struct {
	// SessionID, when set, limits the subscription to transfer
	// events of that session.
	SessionID uuid.UUID

	// RoomID, when set, limits the subscription to chat events of
	// that room.
	RoomID uuid.UUID
}

// ScopeAll returns the scope that receives every event.
func ScopeAll() Scope { return Scope{} }

// ScopeSession returns a scope limited to one transfer session.
func ScopeSession(id uuid.UUID) Scope { return Scope{SessionID: id} }

// ScopeRoom returns a scope limited to one chat room.
func ScopeRoom(id uuid.UUID) Scope { return Scope{RoomID: id} }

// matches reports whether an event falls inside the scope.
func (s Scope) matches(ev Event) bool {
	if s.SessionID == uuid.Nil && s.RoomID == uuid.Nil {
		return true
	}
	switch typed := ev.(type) {
	case TransferEvent:
		return s.SessionID != uuid.Nil && typed.ID == s.SessionID
	case ChatEvent:
		return s.RoomID != uuid.Nil && typed.RoomID == s.RoomID
	}
	return false
}

// Bus fans events out to subscribers. Publishing never blocks: each
// subscriber has a bounded buffer, and when a slow subscriber's
// buffer fills, its oldest buffered event is dropped to make room.
// Events a subscriber does receive arrive in publish order.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
	logger      *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize overrides the per-subscriber buffer size.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	bus := &Bus{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  DefaultBufferSize,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Subscribe registers a new subscriber for events matching the scope.
// The caller must eventually call Close on the returned subscription.
func (b *Bus) Subscribe(scope Scope) *Subscription {
	sub := &Subscription{
		bus:    b,
		scope:  scope,
		events: make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish delivers an event to every subscriber whose scope matches.
// Never blocks.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subscribers := make([]*Subscription, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	b.mu.Unlock()

	for _, sub := range subscribers {
		if sub.scope.matches(ev) {
			sub.deliver(ev, b.logger)
		}
	}
}

// remove unregisters a subscription.
func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
}

// Subscription is one subscriber's event stream.
type Subscription struct {
	bus    *Bus
	scope  Scope
	events chan Event

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Events returns the channel events arrive on. The channel is closed
// when the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped returns the number of events discarded because this
// subscriber's buffer was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.remove(s)
	close(s.events)
}

// deliver enqueues an event, evicting the oldest buffered event if
// the buffer is full. Serialized under the subscription mutex so the
// evict-then-send pair is atomic with respect to other publishers and
// Close.
func (s *Subscription) deliver(ev Event, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.events <- ev:
			return
		default:
		}

		// Buffer full: drop the oldest. The consumer may have drained
		// an element between the checks, in which case the receive
		// misses and the next send attempt succeeds.
		select {
		case <-s.events:
			s.dropped++
			if s.dropped == 1 || s.dropped%100 == 0 {
				logger.Warn("slow event subscriber, dropping oldest",
					"dropped_total", s.dropped,
				)
			}
		default:
		}
	}
}
