// Package transport is the thin HTTP + WebSocket shell around room.Room:
// an initial-content fetch over plain JSON, and a socket upgrade that
// frames the sync/ack/update/conflict/error/user_count_update protocol as
// {type, payload} JSON messages. None of the convergence logic lives
// here — every handler just decodes a frame, calls into a room.Room, and
// encodes whatever comes back.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabnote/httpx"
	"collabnote/room"
)

// Server wires a room.Registry to the external HTTP/WebSocket interface.
type Server struct {
	registry *room.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
	connSeq  atomic.Uint64
}

// NewServer creates a Server over registry. logger must not be nil.
func NewServer(registry *room.Registry, logger *zap.Logger) *Server {
	return &Server{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the full middleware-wrapped HTTP handler: request-id
// tagging, structured logging, panic recovery, then CORS, around a mux
// carrying the note and WebSocket routes. Every other path falls through
// the mux's default NotFound handling to a 404.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/note/{id}", s.handleNote)
	mux.HandleFunc("/ws/note/{id}", s.handleWS)

	return httpx.Chain(mux,
		httpx.RequestIDMiddleware,
		func(h http.Handler) http.Handler { return httpx.LoggingMiddleware(s.logger, h) },
		func(h http.Handler) http.Handler { return httpx.RecoveryMiddleware(s.logger, h) },
		httpx.CORSMiddleware,
	)
}

type noteResponse struct {
	Status        string `json:"status"`
	LatestHash    string `json:"latest_hash"`
	LatestContent string `json:"latest_content"`
}

// handleNote serves GET /api/note/{id}, creating the room (with its
// initial empty commit) on first reference if it doesn't exist yet.
func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("id")

	rm, err := s.registry.Get(noteID)
	if err != nil {
		s.logger.Error("failed to open room", zap.String("note_id", noteID), zap.Error(err))
		r = httpx.WithErrorAndCodeAndMessage(r, err, http.StatusInternalServerError, "Failed to open note")
		httpx.WriteError(w, r)
		return
	}

	hash, content, err := rm.Snapshot()
	if err != nil {
		s.logger.Error("failed to snapshot room", zap.String("note_id", noteID), zap.Error(err))
		r = httpx.WithErrorAndCodeAndMessage(r, err, http.StatusInternalServerError, "Failed to read note")
		httpx.WriteError(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(noteResponse{
		Status:        "success",
		LatestHash:    hash,
		LatestContent: content,
	})
}

// handleWS upgrades /ws/note/{id} and joins the connection to the note's
// room for the lifetime of the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("id")

	rm, err := s.registry.Get(noteID)
	if err != nil {
		s.logger.Error("failed to open room for websocket", zap.String("note_id", noteID), zap.Error(err))
		r = httpx.WithErrorAndCodeAndMessage(r, err, http.StatusInternalServerError, "Failed to open note")
		httpx.WriteError(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("note_id", noteID), zap.Error(err))
		return
	}

	id := fmt.Sprintf("%s-%d-%d", noteID, time.Now().UnixNano(), s.connSeq.Add(1))
	wsConn := NewConnection(id, conn, rm, s.logger)
	wsConn.Start()
}
