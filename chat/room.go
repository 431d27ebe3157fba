// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/transport"
)

// RoomStatus is a room's lifecycle state.
type RoomStatus string

const (
	// RoomActive: joined and pumping messages.
	RoomActive RoomStatus = "active"

	// RoomLeft: left by the local user. Terminal.
	RoomLeft RoomStatus = "left"
)

// Room is one joined chat room: a gossip topic plus local state —
// member set, bounded message history, and the dedup set that makes
// gossip redelivery invisible.
type Room struct {
	// ID is the local room UUID.
	ID uuid.UUID

	// TopicID is the gossip topic shared by all members.
	TopicID uuid.UUID

	// Name and Description are local labels; they are not gossiped.
	Name        string
	Description string

	// CreatedAt is when the room was created or joined locally.
	CreatedAt time.Time

	sub        transport.TopicSub
	maxHistory int

	mu      sync.Mutex
	status  RoomStatus
	members map[uuid.UUID]string
	history []Message
	seen    map[uuid.UUID]struct{}
}

// Status returns the room's lifecycle state.
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Members returns the display names of known room members, sorted.
// Membership is gossip-derived and therefore approximate: peers that
// never announced, or whose notices were lost, are absent.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.members))
	for _, name := range r.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns a copy of the room's message history, oldest first.
// At most maxHistory messages are retained; older ones are evicted.
func (r *Room) History() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := make([]Message, len(r.history))
	copy(history, r.history)
	return history
}

// append adds a message to history, evicting the oldest when the
// bound is exceeded. Returns false if the message ID was already
// seen. Dedup tracks only the retained history, so room memory stays
// bounded by maxHistory.
func (r *Room) append(m Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[m.ID]; dup {
		return false
	}
	r.seen[m.ID] = struct{}{}

	r.history = append(r.history, m)
	if len(r.history) > r.maxHistory {
		overflow := len(r.history) - r.maxHistory
		for _, evicted := range r.history[:overflow] {
			delete(r.seen, evicted.ID)
		}
		r.history = append(r.history[:0], r.history[overflow:]...)
	}
	return true
}

// setMember records a member, returning true if it was new.
func (r *Room) setMember(id uuid.UUID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.members[id]
	r.members[id] = name
	return !known
}

// removeMember forgets a member, returning true if it was known.
func (r *Room) removeMember(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.members[id]
	delete(r.members, id)
	return known
}

// markLeft transitions the room to its terminal state. Returns false
// if the room had already left.
func (r *Room) markLeft() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == RoomLeft {
		return false
	}
	r.status = RoomLeft
	return true
}
