// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/lib/clock"
	"github.com/quicksend-foundation/quicksend/ticket"
	"github.com/quicksend-foundation/quicksend/transport"
)

// DefaultMaxHistory is the per-room message history bound.
const DefaultMaxHistory = 100

// ErrRoomNotFound is returned for operations on unknown or left
// rooms.
var ErrRoomNotFound = errors.New("chat room not found")

// ErrFileSharingDisabled is returned by ShareFile when file sharing
// is switched off in configuration.
var ErrFileSharingDisabled = errors.New("file sharing is disabled")

// Config holds the chat engine's collaborators and settings.
type Config struct {
	// Broadcaster provides gossip topics. Required.
	Broadcaster transport.Broadcaster

	// Bus receives chat events. Required.
	Bus *event.Bus

	// UserName is the local display name. Required (the config layer
	// generates a default).
	UserName string

	// MaxHistory bounds per-room history. Zero means
	// DefaultMaxHistory.
	MaxHistory int

	// FileSharing enables ShareFile.
	FileSharing bool

	// Logger receives operational messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger

	// Clock supplies message timestamps. If nil, the real clock is
	// used.
	Clock clock.Clock
}

// Engine manages chat rooms over gossip topics. Sends are
// fire-and-forget: a message is appended to local history and
// broadcast, and no delivery confirmation exists. Message IDs
// deduplicate gossip redelivery; nothing orders messages across
// peers.
type Engine struct {
	broadcaster transport.Broadcaster
	bus         *event.Bus
	logger      *slog.Logger
	clock       clock.Clock

	senderID    uuid.UUID
	userName    string
	maxHistory  int
	fileSharing bool

	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
	pumps sync.WaitGroup
}

// NewEngine creates a chat engine. The engine mints a sender UUID
// identifying this instance in presence notices.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Broadcaster == nil {
		return nil, fmt.Errorf("chat: Broadcaster is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("chat: Bus is required")
	}
	if cfg.UserName == "" {
		return nil, fmt.Errorf("chat: UserName is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	return &Engine{
		broadcaster: cfg.Broadcaster,
		bus:         cfg.Bus,
		logger:      logger,
		clock:       clk,
		senderID:    uuid.New(),
		userName:    cfg.UserName,
		maxHistory:  maxHistory,
		fileSharing: cfg.FileSharing,
		rooms:       make(map[uuid.UUID]*Room),
	}, nil
}

// CreateRoom creates a room on a fresh topic and joins it
// immediately.
func (e *Engine) CreateRoom(name, description string) (*Room, error) {
	if name == "" {
		return nil, fmt.Errorf("chat: room name is required")
	}

	roomID := uuid.New()
	topicID := deriveTopicID(roomID)

	return e.join(roomID, topicID, name, description)
}

// JoinRoom joins the room gossiping on the given topic. The topic ID
// doubles as the local room ID.
func (e *Engine) JoinRoom(topicID uuid.UUID) (*Room, error) {
	if topicID == uuid.Nil {
		return nil, fmt.Errorf("chat: topic ID is required")
	}
	return e.join(topicID, topicID, "room-"+topicID.String()[:8], "")
}

// JoinRoomTicket joins a room from its ticket string.
func (e *Engine) JoinRoomTicket(ticketString string) (*Room, error) {
	decoded, err := ticket.DecodeRoom(ticketString)
	if err != nil {
		return nil, err
	}
	return e.JoinRoom(decoded.TopicID)
}

// RoomTicket returns a shareable ticket for a joined room. addr is
// the local node's dialable address.
func (e *Engine) RoomTicket(roomID uuid.UUID, addr string) (string, error) {
	room, err := e.activeRoom(roomID)
	if err != nil {
		return "", err
	}
	return ticket.RoomTicket{TopicID: room.TopicID, Addr: addr}.Encode()
}

// LeaveRoom broadcasts a best-effort leave notice, unsubscribes from
// the topic, and drops local room state. The room is terminal
// afterwards.
func (e *Engine) LeaveRoom(roomID uuid.UUID) error {
	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if ok {
		delete(e.rooms, roomID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("chat: leaving %s: %w", roomID, ErrRoomNotFound)
	}
	if !room.markLeft() {
		return fmt.Errorf("chat: leaving %s: %w", roomID, ErrRoomNotFound)
	}

	// Best-effort leave notice. Failure only means peers find out
	// by silence.
	notice := e.newSystemMessage(room, noticeLeave, e.userName+" left")
	if payload, err := encodeMessage(notice); err == nil {
		if err := room.sub.Broadcast(payload); err != nil {
			e.logger.Debug("leave notice broadcast failed",
				"room_id", roomID,
				"error", err,
			)
		}
	}

	room.sub.Close()
	e.logger.Info("left chat room", "room_id", roomID)
	return nil
}

// SendMessage broadcasts a message to the room and appends it to
// local history immediately. Fire-and-forget: a broadcast failure
// emits a RoomError event and the room stays usable.
func (e *Engine) SendMessage(roomID uuid.UUID, content string, messageType MessageType) (Message, error) {
	if messageType == "" {
		messageType = MessageText
	}
	if messageType == MessageFileShare {
		return Message{}, fmt.Errorf("chat: use ShareFile for file_share messages")
	}

	room, err := e.activeRoom(roomID)
	if err != nil {
		return Message{}, err
	}

	message := Message{
		ID:         uuid.New(),
		RoomID:     room.ID,
		SenderID:   e.senderID,
		SenderName: e.userName,
		Content:    content,
		Type:       messageType,
		Timestamp:  e.clock.Now().UTC(),
	}

	e.sendToRoom(room, message)
	return message, nil
}

// ShareFile broadcasts a file_share message carrying a share ticket.
// Receivers decide whether to download; nothing is transferred by the
// chat layer.
func (e *Engine) ShareFile(roomID uuid.UUID, fileName, ticketString string) (Message, error) {
	if !e.fileSharing {
		return Message{}, ErrFileSharingDisabled
	}
	if fileName == "" || ticketString == "" {
		return Message{}, fmt.Errorf("chat: file name and ticket are required")
	}

	room, err := e.activeRoom(roomID)
	if err != nil {
		return Message{}, err
	}

	message := Message{
		ID:         uuid.New(),
		RoomID:     room.ID,
		SenderID:   e.senderID,
		SenderName: e.userName,
		Content:    "shared " + fileName,
		Type:       MessageFileShare,
		Timestamp:  e.clock.Now().UTC(),
		FileName:   fileName,
		Ticket:     ticketString,
	}

	e.sendToRoom(room, message)
	return message, nil
}

// Room returns a joined room by ID.
func (e *Engine) Room(roomID uuid.UUID) (*Room, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[roomID]
	return room, ok
}

// Rooms returns all currently joined rooms.
func (e *Engine) Rooms() []*Room {
	e.mu.Lock()
	defer e.mu.Unlock()

	rooms := make([]*Room, 0, len(e.rooms))
	for _, room := range e.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Close leaves every room and waits for the inbound pumps to stop.
func (e *Engine) Close() error {
	e.mu.Lock()
	ids := make([]uuid.UUID, 0, len(e.rooms))
	for id := range e.rooms {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.LeaveRoom(id); err != nil && !errors.Is(err, ErrRoomNotFound) {
			return err
		}
	}

	e.pumps.Wait()
	return nil
}

// join subscribes to the topic, announces presence, and starts the
// inbound pump.
func (e *Engine) join(roomID, topicID uuid.UUID, name, description string) (*Room, error) {
	sub, err := e.broadcaster.Subscribe(topicID)
	if err != nil {
		return nil, fmt.Errorf("chat: joining topic %s: %w", topicID, err)
	}

	room := &Room{
		ID:          roomID,
		TopicID:     topicID,
		Name:        name,
		Description: description,
		CreatedAt:   e.clock.Now().UTC(),
		sub:         sub,
		maxHistory:  e.maxHistory,
		status:      RoomActive,
		members:     map[uuid.UUID]string{e.senderID: e.userName},
		seen:        make(map[uuid.UUID]struct{}),
	}

	e.mu.Lock()
	e.rooms[roomID] = room
	e.mu.Unlock()

	// Best-effort join notice.
	notice := e.newSystemMessage(room, noticeJoin, e.userName+" joined")
	room.append(notice)
	if payload, err := encodeMessage(notice); err == nil {
		if err := room.sub.Broadcast(payload); err != nil {
			e.logger.Debug("join notice broadcast failed",
				"room_id", roomID,
				"error", err,
			)
		}
	}

	e.pumps.Add(1)
	go e.pump(room)

	e.logger.Info("joined chat room",
		"room_id", roomID,
		"topic_id", topicID,
		"name", name,
	)
	return room, nil
}

// pump reads inbound topic payloads until the subscription closes.
func (e *Engine) pump(room *Room) {
	defer e.pumps.Done()

	for payload := range room.sub.Messages() {
		message, err := decodeMessage(payload, room.ID)
		if err != nil {
			e.logger.Debug("dropping undecodable room payload",
				"room_id", room.ID,
				"error", err,
			)
			continue
		}

		// Gossip redelivers; a seen ID is a no-op.
		if !room.append(message) {
			continue
		}

		switch message.Notice {
		case noticeJoin:
			if room.setMember(message.SenderID, message.SenderName) {
				e.bus.Publish(event.ChatEvent{
					Kind:   event.UserJoined,
					RoomID: room.ID,
					Sender: message.SenderName,
				})
			}
		case noticeLeave:
			if room.removeMember(message.SenderID) {
				e.bus.Publish(event.ChatEvent{
					Kind:   event.UserLeft,
					RoomID: room.ID,
					Sender: message.SenderName,
				})
			}
		default:
			e.publishMessage(message)
		}
	}
}

// sendToRoom appends locally, broadcasts, and reports failures as
// RoomError events.
func (e *Engine) sendToRoom(room *Room, message Message) {
	room.append(message)
	e.publishMessage(message)

	payload, err := encodeMessage(message)
	if err == nil {
		err = room.sub.Broadcast(payload)
	}
	if err != nil {
		e.logger.Warn("room broadcast failed",
			"room_id", room.ID,
			"message_id", message.ID,
			"error", err,
		)
		e.bus.Publish(event.ChatEvent{
			Kind:   event.RoomError,
			RoomID: room.ID,
			Error:  err.Error(),
		})
	}
}

func (e *Engine) publishMessage(message Message) {
	e.bus.Publish(event.ChatEvent{
		Kind:        event.MessageReceived,
		RoomID:      message.RoomID,
		MessageID:   message.ID,
		Sender:      message.SenderName,
		Content:     message.Content,
		MessageType: string(message.Type),
		FileName:    message.FileName,
		Ticket:      message.Ticket,
	})
}

func (e *Engine) newSystemMessage(room *Room, notice, content string) Message {
	return Message{
		ID:         uuid.New(),
		RoomID:     room.ID,
		SenderID:   e.senderID,
		SenderName: e.userName,
		Content:    content,
		Type:       MessageSystem,
		Timestamp:  e.clock.Now().UTC(),
		Notice:     notice,
	}
}

func (e *Engine) activeRoom(roomID uuid.UUID) (*Room, error) {
	e.mu.Lock()
	room, ok := e.rooms[roomID]
	e.mu.Unlock()

	if !ok || room.Status() != RoomActive {
		return nil, fmt.Errorf("chat: room %s: %w", roomID, ErrRoomNotFound)
	}
	return room, nil
}

// deriveTopicID maps a room UUID to its gossip topic. Deterministic
// so a future "reopen room" flow lands on the same topic.
func deriveTopicID(roomID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("quicksend:room:"+roomID.String()))
}
