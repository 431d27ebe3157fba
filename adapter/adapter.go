// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter defines the per-environment translation contract
// over the quicksend core.
//
// Every front-end (CLI process, HTTP server, embedding host) consumes
// the same capability set; implementations differ only in how they
// transport results and events into their environment. Adapters are
// selected at composition time by constructing the one that fits —
// plain dependency injection, no registry.
package adapter

import (
	"context"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/chat"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/manifest"
	"github.com/quicksend-foundation/quicksend/quicksend"
	"github.com/quicksend-foundation/quicksend/transfer"
)

// Adapter is the capability set every environment gets. The
// integrated client implements it directly; wrappers add their
// environment's delivery mechanism on top.
type Adapter interface {
	// Transfers.
	UploadFile(ctx context.Context, path string) (*transfer.ShareResponse, error)
	DownloadFiles(ctx context.Context, ticketString, destDir string) ([]string, error)
	RemoveFile(ctx context.Context, name string) error
	PurgeFile(ctx context.Context, name string) error
	GetShareCode() (*transfer.ShareResponse, error)
	ListFiles(ctx context.Context) ([]manifest.Entry, error)
	Sessions() []transfer.Session

	// Chat.
	CreateChatRoom(name, description string) (*chat.Room, error)
	JoinChatRoom(ref string) (*chat.Room, error)
	LeaveChatRoom(roomID uuid.UUID) error
	SendChatMessage(roomID uuid.UUID, content string, messageType chat.MessageType) (chat.Message, error)
	ShareFileToRoom(ctx context.Context, roomID uuid.UUID, name string) (chat.Message, error)

	// Events.
	SubscribeEvents(scope event.Scope) *event.Subscription

	Close() error
}

// The integrated client is itself a complete adapter.
var _ Adapter = (*quicksend.Client)(nil)
