// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/lib/codec"
)

// MessageType classifies a chat message.
type MessageType string

const (
	// MessageText is an ordinary user message.
	MessageText MessageType = "text"

	// MessageSystem is a generated notice (joins, leaves).
	MessageSystem MessageType = "system"

	// MessageFileShare carries a share ticket for a file.
	MessageFileShare MessageType = "file_share"
)

// Presence notice kinds carried on system messages.
const (
	noticeJoin  = "join"
	noticeLeave = "leave"
)

// Message is one chat message. Messages travel between peers as CBOR
// and are identified by UUID: a message seen twice (gossip redelivery)
// is processed once.
type Message struct {
	// ID is the message UUID, minted by the sender.
	ID uuid.UUID `json:"id"`

	// RoomID is the local room the message belongs to. Set on
	// receipt, not carried on the wire — each peer knows the room by
	// its own ID.
	RoomID uuid.UUID `json:"room_id"`

	// SenderID identifies the sending engine instance.
	SenderID uuid.UUID `json:"sender_id"`

	// SenderName is the sender's display name.
	SenderName string `json:"sender_name"`

	// Content is the message body. For system messages this is the
	// rendered notice text.
	Content string `json:"content"`

	// Type classifies the message.
	Type MessageType `json:"type"`

	// Timestamp is the sender's local send time. Informational only:
	// gossip gives no cross-peer ordering, so timestamps from
	// different peers are not comparable.
	Timestamp time.Time `json:"timestamp"`

	// FileName and Ticket are set on file_share messages.
	FileName string `json:"file_name,omitempty"`
	Ticket   string `json:"ticket,omitempty"`

	// Notice marks system messages that carry membership changes
	// ("join" or "leave").
	Notice string `json:"notice,omitempty"`
}

// wireMessage is the CBOR form broadcast to the topic. RoomID is
// deliberately absent: room identity is local to each peer.
type wireMessage struct {
	ID         uuid.UUID   `json:"id"`
	SenderID   uuid.UUID   `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	FileName   string      `json:"file_name,omitempty"`
	Ticket     string      `json:"ticket,omitempty"`
	Notice     string      `json:"notice,omitempty"`
}

func encodeMessage(m Message) ([]byte, error) {
	data, err := codec.Marshal(wireMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Type:       m.Type,
		Timestamp:  m.Timestamp,
		FileName:   m.FileName,
		Ticket:     m.Ticket,
		Notice:     m.Notice,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: encoding message: %w", err)
	}
	return data, nil
}

func decodeMessage(payload []byte, roomID uuid.UUID) (Message, error) {
	var wire wireMessage
	if err := codec.Unmarshal(payload, &wire); err != nil {
		return Message{}, fmt.Errorf("chat: decoding message: %w", err)
	}
	if wire.ID == uuid.Nil {
		return Message{}, fmt.Errorf("chat: message has no ID")
	}
	return Message{
		ID:         wire.ID,
		RoomID:     roomID,
		SenderID:   wire.SenderID,
		SenderName: wire.SenderName,
		Content:    wire.Content,
		Type:       wire.Type,
		Timestamp:  wire.Timestamp,
		FileName:   wire.FileName,
		Ticket:     wire.Ticket,
		Notice:     wire.Notice,
	}, nil
}
