// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTransferInFlight is returned when a second transfer is requested
// for a logical key (file name for uploads, ticket string for
// downloads) that already has an active session. Interleaved writes
// to the same destination would corrupt it; the caller retries after
// the first transfer finishes.
var ErrTransferInFlight = errors.New("a transfer for this key is already in flight")

// Direction says which way a session moves bytes.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// Status is a session's position in its state machine:
// queued → running → done | error. Terminal states are final; a
// failed transfer is retried by creating a new session.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether the status is done or error.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Session is a point-in-time snapshot of one transfer. The engine
// owns the mutable record; callers only ever see copies.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Direction Direction `json:"direction"`
	FileName  string    `json:"file_name"`
	Size      int64     `json:"size"`
	Offset    int64     `json:"offset"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// session is the engine-internal mutable record. All mutation happens
// through registry methods under the registry lock; the owning worker
// is the only writer after creation.
type session struct {
	Session
	key string
}

// registry tracks sessions and enforces single-flight per logical
// key. Terminal sessions stay visible until released so callers can
// inspect the outcome.
type registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	inflight map[string]uuid.UUID
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[uuid.UUID]*session),
		inflight: make(map[string]uuid.UUID),
	}
}

// begin creates a queued session for the given key. Fails with
// ErrTransferInFlight when the key already has an active session.
func (r *registry) begin(direction Direction, key, fileName string, size int64, now time.Time) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.inflight[key]; busy {
		return nil, ErrTransferInFlight
	}

	s := &session{
		Session: Session{
			ID:        uuid.New(),
			Direction: direction,
			FileName:  fileName,
			Size:      size,
			Status:    StatusQueued,
			CreatedAt: now,
		},
		key: key,
	}
	r.sessions[s.ID] = s
	r.inflight[key] = s.ID
	return s, nil
}

// run transitions the session to running.
func (r *registry) run(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Status = StatusRunning
}

// progress updates the session's byte offset (and size, once known).
func (r *registry) progress(s *session, offset, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Offset = offset
	if size > 0 {
		s.Size = size
	}
}

// setName records the file name once a download learns it.
func (r *registry) setName(s *session, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.FileName = name
}

// finish moves the session to done and releases its key.
func (r *registry) finish(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Status = StatusDone
	delete(r.inflight, s.key)
}

// fail moves the session to error with the given reason and releases
// its key.
func (r *registry) fail(s *session, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Status = StatusError
	s.Error = reason
	delete(r.inflight, s.key)
}

// snapshot returns a copy of the session's current state.
func (r *registry) snapshot(s *session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.Session
}

// get returns a snapshot of the session with the given ID.
func (r *registry) get(id uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.Session, true
}

// list returns snapshots of all sessions, newest first.
func (r *registry) list() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Session)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// release removes a terminal session from the registry. Active
// sessions cannot be released.
func (r *registry) release(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.Status.Terminal() {
		return false
	}
	delete(r.sessions, id)
	return true
}
