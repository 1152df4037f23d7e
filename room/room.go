package room

import (
	"fmt"

	"go.uber.org/zap"

	"collabnote/ot"
	"collabnote/version"
)

// Room owns one note's version.Store and the set of connections currently
// viewing it. Every piece of state a Room touches is only ever touched from
// its own goroutine (Room.run) — a single-writer actor specifically so the
// merge algorithm never needs its own locking. Callers talk to a Room
// exclusively through its exported methods, which hand a command to the
// actor over an unbuffered channel (Snapshot then also waits for the
// reply).
type Room struct {
	NoteID string

	store  *version.Store
	conns  map[string]Connection
	cmds   chan command
	logger *zap.Logger

	// onEmpty is invoked from the room goroutine the moment the last
	// connection leaves. The registry uses it to evict and shut the room
	// down; nil is fine (and used in tests) when nobody needs to know.
	onEmpty func()
}

type command interface {
	run(*Room)
}

type syncCmd struct {
	conn Connection
	req  SyncRequest
}

func (c syncCmd) run(r *Room) { r.handleSync(c.conn, c.req) }

type joinCmd struct {
	conn Connection
}

func (c joinCmd) run(r *Room) { r.handleJoin(c.conn) }

type leaveCmd struct {
	connID string
}

func (c leaveCmd) run(r *Room) { r.handleLeave(c.connID) }

// snapshotCmd lets a caller read the room's current content through the
// actor, so a read is never interleaved with an in-progress commit at a
// point a bare Store read could catch mid-merge. reply is buffered by 1 so
// run never blocks on a caller that stops listening.
type snapshotCmd struct {
	reply chan noteSnapshot
}

func (c snapshotCmd) run(r *Room) {
	head, err := r.store.Head()
	if err != nil {
		c.reply <- noteSnapshot{err: err}
		return
	}
	content, _ := r.store.ContentAt(head)
	c.reply <- noteSnapshot{hash: head, content: content}
}

type noteSnapshot struct {
	hash    string
	content string
	err     error
}

// NewRoom opens a fresh version.Store and starts the room's actor
// goroutine. The caller (normally a Registry) is responsible for calling
// Shutdown once the room is no longer needed.
func NewRoom(noteID string, logger *zap.Logger, onEmpty func()) (*Room, error) {
	store, err := version.Open(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open version store for room %q: %w", noteID, err)
	}

	r := &Room{
		NoteID:  noteID,
		store:   store,
		conns:   make(map[string]Connection),
		cmds:    make(chan command),
		logger:  logger,
		onEmpty: onEmpty,
	}
	go r.run()
	return r, nil
}

func (r *Room) run() {
	for cmd := range r.cmds {
		r.dispatch(cmd)
	}
	if err := r.store.Close(); err != nil && r.logger != nil {
		r.logger.Warn("failed to close version store", zap.String("note_id", r.NoteID), zap.Error(err))
	}
}

// dispatch runs a single command with panic recovery: an unexpected panic
// inside the merge algorithm must not take the whole room goroutine down
// with it — every other connection in the room would lose their socket for
// no reason. It surfaces as a conflict to whichever connection triggered
// the sync, same as an ordinary OT failure.
func (r *Room) dispatch(cmd command) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("recovered panic in room actor", zap.String("note_id", r.NoteID), zap.Any("panic", rec))
			}
			if sc, ok := cmd.(syncCmd); ok {
				_ = sc.conn.SendConflict(Conflict{Message: "internal error, please reload"})
			}
		}
	}()
	cmd.run(r)
}

// Sync enqueues a client's sync request. The room replies asynchronously,
// via conn's Ack/Update/Conflict/Error methods, once the request reaches
// the front of the actor's queue.
func (r *Room) Sync(conn Connection, req SyncRequest) {
	r.cmds <- syncCmd{conn: conn, req: req}
}

// Join registers conn as a member of the room and broadcasts the new
// occupant count to everyone, including conn itself.
func (r *Room) Join(conn Connection) {
	r.cmds <- joinCmd{conn: conn}
}

// Leave removes a connection. If it was the last one, the room notifies
// onEmpty and the registry is expected to call Shutdown.
func (r *Room) Leave(connID string) {
	r.cmds <- leaveCmd{connID: connID}
}

// Snapshot returns the room's current HEAD hash and content, for the
// initial HTTP fetch and for a freshly-joined WebSocket connection's first
// "sync" message.
func (r *Room) Snapshot() (hash, content string, err error) {
	reply := make(chan noteSnapshot, 1)
	r.cmds <- snapshotCmd{reply: reply}
	snap := <-reply
	return snap.hash, snap.content, snap.err
}

// Shutdown stops the actor goroutine and closes the underlying store. It
// must only be called once the room has no connections left and no caller
// will enqueue further commands — the registry guarantees this by removing
// the room from its map in the same breath it calls Shutdown.
func (r *Room) Shutdown() {
	close(r.cmds)
}

func (r *Room) handleJoin(conn Connection) {
	r.conns[conn.ID()] = conn
	if r.logger != nil {
		r.logger.Debug("connection joined", zap.String("note_id", r.NoteID), zap.String("conn_id", conn.ID()), zap.Int("count", len(r.conns)))
	}
	r.broadcastUserCount()
}

func (r *Room) handleLeave(connID string) {
	if _, ok := r.conns[connID]; !ok {
		return
	}
	delete(r.conns, connID)
	if r.logger != nil {
		r.logger.Debug("connection left", zap.String("note_id", r.NoteID), zap.String("conn_id", connID), zap.Int("count", len(r.conns)))
	}
	if len(r.conns) == 0 {
		if r.onEmpty != nil {
			r.onEmpty()
		}
		return
	}
	r.broadcastUserCount()
}

func (r *Room) broadcastUserCount() {
	count := len(r.conns)
	for id, c := range r.conns {
		if err := c.SendUserCount(count); err != nil {
			r.dropConnection(id, c)
		}
	}
}

// handleSync is the merge protocol itself: fast-forward when the client's
// base hash is already HEAD, three-way merge against the diff of what
// moved under them otherwise.
func (r *Room) handleSync(conn Connection, req SyncRequest) {
	baseContent, ok := r.store.ContentAt(req.BaseHash)
	if !ok {
		_ = conn.SendError(ErrorReply{Message: "Base hash not found. Please reload."})
		return
	}

	head, err := r.store.Head()
	if err != nil {
		_ = conn.SendConflict(Conflict{Message: "internal error, please reload"})
		return
	}

	if req.BaseHash == head {
		r.fastForward(conn, baseContent, req.Operations)
		return
	}

	serverContent, ok := r.store.ContentAt(head)
	if !ok {
		_ = conn.SendConflict(Conflict{Message: "internal error, please reload"})
		return
	}
	r.merge(conn, baseContent, serverContent, req.Operations)
}

func (r *Room) fastForward(conn Connection, baseContent string, ops []ot.Operation) {
	newContent, err := ot.Apply(baseContent, ops)
	if err != nil {
		_ = conn.SendConflict(Conflict{Message: err.Error()})
		return
	}

	newHash, err := r.store.Commit(newContent, "Update from client")
	if err != nil {
		_ = conn.SendConflict(Conflict{Message: "internal error, please reload"})
		return
	}

	_ = conn.SendAck(Ack{NewHash: newHash})
	r.broadcastUpdate(conn, Update{LatestHash: newHash, Operations: ops})
}

func (r *Room) merge(conn Connection, baseContent, serverContent string, clientOps []ot.Operation) {
	clientContent, err := ot.Apply(baseContent, clientOps)
	if err != nil {
		_ = conn.SendConflict(Conflict{Message: err.Error()})
		return
	}

	// Re-diff both sides against base rather than transforming the raw
	// request ops: the restricted transform only guarantees convergence
	// for the single-character, non-overlapping op shape DiffToOps
	// produces, and a client is free to send coalesced multi-char ops.
	serverOps := ot.DiffToOps(ot.Diff(baseContent, serverContent))
	canonicalClientOps := ot.DiffToOps(ot.Diff(baseContent, clientContent))
	rebasedOps := ot.Transform(canonicalClientOps, serverOps)

	mergedContent, err := ot.Apply(serverContent, rebasedOps)
	if err != nil {
		_ = conn.SendConflict(Conflict{Message: err.Error()})
		return
	}

	newHash, err := r.store.Commit(mergedContent, "Merged update from client")
	if err != nil {
		_ = conn.SendConflict(Conflict{Message: "internal error, please reload"})
		return
	}

	_ = conn.SendAck(Ack{NewHash: newHash})

	broadcastOps := ot.DiffToOps(ot.Diff(serverContent, mergedContent))
	if len(broadcastOps) > 0 {
		r.broadcastUpdate(conn, Update{LatestHash: newHash, Operations: broadcastOps})
	}
}

// broadcastUpdate sends update to every connection except the one whose
// commit produced it: the sender already has the result via its own Ack
// and must not re-apply its own edit.
func (r *Room) broadcastUpdate(sender Connection, update Update) {
	for id, c := range r.conns {
		if id == sender.ID() {
			continue
		}
		if err := c.SendUpdate(update); err != nil {
			r.dropConnection(id, c)
		}
	}
}

func (r *Room) dropConnection(id string, c Connection) {
	if r.logger != nil {
		r.logger.Warn("dropping unresponsive connection", zap.String("note_id", r.NoteID), zap.String("conn_id", id))
	}
	delete(r.conns, id)
	_ = c.Close()
	if len(r.conns) == 0 && r.onEmpty != nil {
		r.onEmpty()
	}
}
