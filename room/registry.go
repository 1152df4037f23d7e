package room

import (
	"sync"

	"go.uber.org/zap"
)

// Registry lazily spawns and tracks one Room per note ID. The map itself
// needs a mutex since Get is called concurrently
// from many connection goroutines; the rooms it hands out need none, since
// each serializes its own traffic internally.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	logger *zap.Logger
}

// NewRegistry creates an empty Registry. logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// Get returns the Room for noteID, spawning it on first access.
func (reg *Registry) Get(noteID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[noteID]; ok {
		return r, nil
	}

	r, err := NewRoom(noteID, reg.logger, func() { reg.evict(noteID) })
	if err != nil {
		return nil, err
	}
	reg.rooms[noteID] = r
	if reg.logger != nil {
		reg.logger.Info("room created", zap.String("note_id", noteID))
	}
	return r, nil
}

// evict removes and shuts down the room for noteID. It runs on the room's
// own actor goroutine (called from handleLeave/dropConnection), so it must
// not call back into the room it is evicting — Shutdown only closes the
// command channel, it does not wait for run to return.
func (reg *Registry) evict(noteID string) {
	reg.mu.Lock()
	r, ok := reg.rooms[noteID]
	if ok {
		delete(reg.rooms, noteID)
	}
	reg.mu.Unlock()

	if !ok {
		return
	}
	if reg.logger != nil {
		reg.logger.Info("room emptied, shutting down", zap.String("note_id", noteID))
	}
	r.Shutdown()
}

// Len reports how many rooms are currently active. Mostly useful for tests
// and a future health-check endpoint.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// ShutdownAll stops every currently running room actor, closing each
// one's version store. Called once at process shutdown, after the HTTP
// server has stopped accepting new connections, so no Get can race a
// room being torn down here.
func (reg *Registry) ShutdownAll() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for id, r := range reg.rooms {
		rooms = append(rooms, r)
		delete(reg.rooms, id)
	}
	reg.mu.Unlock()

	for _, r := range rooms {
		r.Shutdown()
	}
}
