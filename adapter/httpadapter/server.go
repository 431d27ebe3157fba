// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpadapter exposes the quicksend core as a JSON REST API
// with a server-sent-events stream, for web front-ends and remote
// control of a standalone node.
//
// Routes:
//
//	POST   /api/files            {"path": ...}              share a host-local file
//	GET    /api/files                                       list manifest entries
//	DELETE /api/files/{name}                                remove an entry; ?purge=true deletes content
//	GET    /api/share-code                                  ticket for the whole document
//	POST   /api/downloads        {"ticket": ..., "dir": ..} download a document
//	GET    /api/sessions                                    transfer sessions
//	POST   /api/rooms            {"name": ..., "description": ..}
//	POST   /api/rooms/join       {"ref": ...}               topic UUID or room ticket
//	DELETE /api/rooms/{id}                                  leave
//	GET    /api/rooms/{id}                                  members and history
//	POST   /api/rooms/{id}/messages {"content": ..., "type": ..}
//	POST   /api/rooms/{id}/share    {"name": ...}
//	GET    /api/events           SSE stream; ?session= or ?room= scopes it
//
// Errors are returned as {"error": ..., "code": ...} with the status
// mapped from the error taxonomy.
package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/chat"
	"github.com/quicksend-foundation/quicksend/event"
	"github.com/quicksend-foundation/quicksend/quicksend"
)

// Server is the HTTP adapter. It holds no state of its own beyond
// the client; restarting it loses nothing.
type Server struct {
	client *quicksend.Client
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates the adapter around an open client.
func New(client *quicksend.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		client: client,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/files", s.handleUpload)
	s.mux.HandleFunc("GET /api/files", s.handleList)
	s.mux.HandleFunc("DELETE /api/files/{name}", s.handleRemove)
	s.mux.HandleFunc("GET /api/share-code", s.handleShareCode)
	s.mux.HandleFunc("POST /api/downloads", s.handleDownload)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	s.mux.HandleFunc("POST /api/rooms/join", s.handleJoinRoom)
	s.mux.HandleFunc("DELETE /api/rooms/{id}", s.handleLeaveRoom)
	s.mux.HandleFunc("GET /api/rooms/{id}", s.handleRoomState)
	s.mux.HandleFunc("POST /api/rooms/{id}/messages", s.handleSendMessage)
	s.mux.HandleFunc("POST /api/rooms/{id}/share", s.handleShareToRoom)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch quicksend.Classify(err) {
	case quicksend.CodeTicketParse, quicksend.CodeDownloadDirNotFound:
		return http.StatusBadRequest
	case quicksend.CodeFileNotFound:
		return http.StatusNotFound
	case quicksend.CodeDuplicateFileName:
		return http.StatusConflict
	case quicksend.CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(quicksend.Classify(err)),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

func decodeBody[T any](r *http.Request) (T, error) {
	var body T
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		return body, fmt.Errorf("decoding request body: %w", err)
	}
	return body, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[struct {
		Path string `json:"path"`
	}](r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	share, err := s.client.UploadFile(r.Context(), body.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, share)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.client.ListFiles(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	remove := s.client.RemoveFile
	if r.URL.Query().Get("purge") == "true" {
		remove = s.client.PurgeFile
	}
	if err := remove(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShareCode(w http.ResponseWriter, r *http.Request) {
	share, err := s.client.GetShareCode()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, share)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[struct {
		Ticket string `json:"ticket"`
		Dir    string `json:"dir"`
	}](r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	paths, err := s.client.DownloadFiles(r.Context(), body.Ticket, body.Dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"paths": paths})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.client.Sessions())
}

// roomView is the JSON shape of a room's state.
type roomView struct {
	ID          uuid.UUID      `json:"id"`
	TopicID     uuid.UUID      `json:"topic_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Members     []string       `json:"members"`
	History     []chat.Message `json:"history"`
}

func viewOf(room *chat.Room) roomView {
	return roomView{
		ID:          room.ID,
		TopicID:     room.TopicID,
		Name:        room.Name,
		Description: room.Description,
		Status:      string(room.Status()),
		Members:     room.Members(),
		History:     room.History(),
	}
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}](r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	room, err := s.client.CreateChatRoom(body.Name, body.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewOf(room))
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[struct {
		Ref string `json:"ref"`
	}](r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	room, err := s.client.JoinChatRoom(body.Ref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(room))
}

func (s *Server) roomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roomID(w, r)
	if !ok {
		return
	}
	if err := s.client.LeaveChatRoom(id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roomID(w, r)
	if !ok {
		return
	}
	room, found := s.client.ChatRoom(id)
	if !found {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(room))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roomID(w, r)
	if !ok {
		return
	}
	body, err := decodeBody[struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}](r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	messageType := chat.MessageText
	if body.Type != "" {
		messageType = chat.MessageType(body.Type)
	}
	message, err := s.client.SendChatMessage(id, body.Content, messageType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, message)
}

func (s *Server) handleShareToRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := s.roomID(w, r)
	if !ok {
		return
	}
	body, err := decodeBody[struct {
		Name string `json:"name"`
	}](r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	message, err := s.client.ShareFileToRoom(r.Context(), id, body.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, message)
}

// handleEvents streams bus events as server-sent events until the
// client disconnects. Each event is one SSE message whose event name
// is "transfer" or "chat" and whose data is the event JSON.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	scope := event.ScopeAll()
	if raw := r.URL.Query().Get("session"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
			return
		}
		scope = event.ScopeSession(id)
	}
	if raw := r.URL.Query().Get("room"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
			return
		}
		scope = event.ScopeRoom(id)
	}

	sub := s.client.SubscribeEvents(scope)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev event.Event) error {
	var name string
	switch ev.(type) {
	case event.TransferEvent:
		name = "transfer"
	case event.ChatEvent:
		name = "chat"
	default:
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// ListenAndServe runs the adapter on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s}
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	s.logger.Info("http adapter listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errs:
		return err
	}
}
