// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// memorySubBuffer is the per-subscriber inbound buffer. Gossip is
// lossy: a subscriber that falls this far behind loses messages
// rather than stalling the topic.
const memorySubBuffer = 64

// Compile-time interface check.
var _ Broadcaster = (*MemoryHub)(nil)

// MemoryHub is an in-process Broadcaster. Subscriptions on the same
// hub and topic see each other's broadcasts, so two engines sharing a
// hub behave as two gossip peers. Tests and single-process multi-peer
// setups use this; a networked gossip transport implements the same
// interface.
type MemoryHub struct {
	mu     sync.Mutex
	topics map[uuid.UUID]map[*memorySub]struct{}
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		topics: make(map[uuid.UUID]map[*memorySub]struct{}),
	}
}

// Subscribe joins a topic on this hub.
func (h *MemoryHub) Subscribe(topicID uuid.UUID) (TopicSub, error) {
	if topicID == uuid.Nil {
		return nil, fmt.Errorf("transport: topic ID is required")
	}

	sub := &memorySub{
		hub:      h,
		topicID:  topicID,
		messages: make(chan []byte, memorySubBuffer),
	}

	h.mu.Lock()
	members := h.topics[topicID]
	if members == nil {
		members = make(map[*memorySub]struct{})
		h.topics[topicID] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()

	return sub, nil
}

// SubscriberCount returns how many subscriptions a topic currently
// has. Exposed for tests.
func (h *MemoryHub) SubscriberCount(topicID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topicID])
}

// deliver fans a payload out to every topic member except the sender.
// Slow members are skipped, matching gossip's lossy contract.
func (h *MemoryHub) deliver(from *memorySub, payload []byte) {
	h.mu.Lock()
	members := make([]*memorySub, 0, len(h.topics[from.topicID]))
	for member := range h.topics[from.topicID] {
		if member != from {
			members = append(members, member)
		}
	}
	h.mu.Unlock()

	for _, member := range members {
		member.receive(payload)
	}
}

// remove drops a subscription from its topic, deleting the topic when
// the last member leaves.
func (h *MemoryHub) remove(sub *memorySub) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.topics[sub.topicID]
	delete(members, sub)
	if len(members) == 0 {
		delete(h.topics, sub.topicID)
	}
}

type memorySub struct {
	hub      *MemoryHub
	topicID  uuid.UUID
	messages chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *memorySub) Broadcast(payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("transport: broadcast on closed subscription")
	}

	// Copy so the caller can reuse its buffer after Broadcast
	// returns.
	copied := make([]byte, len(payload))
	copy(copied, payload)

	s.hub.deliver(s, copied)
	return nil
}

func (s *memorySub) Messages() <-chan []byte {
	return s.messages
}

func (s *memorySub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.hub.remove(s)
	close(s.messages)
	return nil
}

// receive enqueues an inbound payload, dropping it if the subscriber
// is not keeping up or has closed.
func (s *memorySub) receive(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.messages <- payload:
	default:
	}
}
