// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"github.com/google/uuid"
)

// Event is a notification published on the bus. The two concrete
// types are [TransferEvent] and [ChatEvent].
type Event interface {
	isEvent()
}

// TransferEventKind identifies what happened to a transfer session.
type TransferEventKind string

const (
	// UploadQueueAppend: an upload session was created and queued.
	UploadQueueAppend TransferEventKind = "upload_queue_append"

	// UploadProgress: more upload bytes were processed. Offset holds
	// the running total.
	UploadProgress TransferEventKind = "upload_progress"

	// UploadDone: the upload completed and the file is shareable.
	UploadDone TransferEventKind = "upload_done"

	// DownloadQueueAppend: a download session was created and queued.
	DownloadQueueAppend TransferEventKind = "download_queue_append"

	// DownloadProgress: more download bytes were verified and
	// written. Offset holds the running total.
	DownloadProgress TransferEventKind = "download_progress"

	// DownloadDone: the download completed and the file is on disk.
	DownloadDone TransferEventKind = "download_done"

	// TransferError: the session reached its terminal error state.
	// Error holds the reason.
	TransferError TransferEventKind = "transfer_error"
)

// TransferEvent reports progress or completion of a transfer session.
type TransferEvent struct {
	// Kind says what happened.
	Kind TransferEventKind `json:"kind"`

	// ID is the transfer session UUID. All events of one session
	// carry the same ID.
	ID uuid.UUID `json:"id"`

	// Name is the file name being transferred.
	Name string `json:"name"`

	// Size is the total size in bytes, when known.
	Size int64 `json:"size,omitempty"`

	// Offset is the number of bytes processed so far.
	Offset int64 `json:"offset,omitempty"`

	// Error is the failure reason for TransferError events.
	Error string `json:"error,omitempty"`
}

func (TransferEvent) isEvent() {}

// ChatEventKind identifies what happened in a chat room.
type ChatEventKind string

const (
	// MessageReceived: a message arrived (or was sent locally).
	MessageReceived ChatEventKind = "message_received"

	// UserJoined: a peer announced itself in the room.
	UserJoined ChatEventKind = "user_joined"

	// UserLeft: a peer announced its departure.
	UserLeft ChatEventKind = "user_left"

	// RoomError: a room operation failed without closing the room.
	// Error holds the reason.
	RoomError ChatEventKind = "room_error"
)

// ChatEvent reports chat room activity. Message fields are flattened
// into the event so subscribers need nothing beyond this package to
// render them.
type ChatEvent struct {
	// Kind says what happened.
	Kind ChatEventKind `json:"kind"`

	// RoomID is the room the event belongs to.
	RoomID uuid.UUID `json:"room_id"`

	// MessageID is the chat message UUID for MessageReceived events.
	MessageID uuid.UUID `json:"message_id,omitempty"`

	// Sender is the display name of the message sender, or the user
	// for UserJoined/UserLeft events.
	Sender string `json:"sender,omitempty"`

	// Content is the message body for MessageReceived events.
	Content string `json:"content,omitempty"`

	// MessageType is the chat message type (text, system,
	// file_share) for MessageReceived events.
	MessageType string `json:"message_type,omitempty"`

	// FileName and Ticket are set for file_share messages.
	FileName string `json:"file_name,omitempty"`
	Ticket   string `json:"ticket,omitempty"`

	// Error is the failure reason for RoomError events.
	Error string `json:"error,omitempty"`
}

func (ChatEvent) isEvent() {}
