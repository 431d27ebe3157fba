// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"sync"

	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/quicksend"
)

// ProgressFunc receives transfer events.
type ProgressFunc func(event.TransferEvent)

// ChatFunc receives chat events.
type ChatFunc func(event.ChatEvent)

// Standalone adapts the client for embedding into a host process
// that wants callbacks instead of channels: a desktop shell's event
// loop, a test harness, a supervisor. Events are dispatched from a
// single goroutine, so callbacks run serialized and in per-source
// order; a slow callback applies backpressure to this adapter's
// subscription only (the bus drops its oldest buffered events past
// the bound, never blocking producers).
type Standalone struct {
	*quicksend.Client

	onProgress ProgressFunc
	onChat     ChatFunc
	sub        *event.Subscription
	done       chan struct{}
	closeOnce  sync.Once
}

// NewStandalone wraps the client and starts dispatching events to the
// callbacks. Either callback may be nil to ignore that event family.
// Close stops dispatch and closes the client.
func NewStandalone(client *quicksend.Client, onProgress ProgressFunc, onChat ChatFunc) *Standalone {
	s := &Standalone{
		Client:     client,
		onProgress: onProgress,
		onChat:     onChat,
		sub:        client.SubscribeEvents(event.ScopeAll()),
		done:       make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Standalone) pump() {
	defer close(s.done)
	for ev := range s.sub.Events() {
		switch typed := ev.(type) {
		case event.TransferEvent:
			if s.onProgress != nil {
				s.onProgress(typed)
			}
		case event.ChatEvent:
			if s.onChat != nil {
				s.onChat(typed)
			}
		}
	}
}

// Close stops event dispatch, waits for in-flight callbacks to
// return, and closes the underlying client.
func (s *Standalone) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.sub.Close()
		<-s.done
		err = s.Client.Close()
	})
	return err
}
