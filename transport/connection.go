package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabnote/room"
)

// outboxSize bounds how many frames a connection can have queued before a
// send is treated as failed. A slow reader backs up the whole room actor
// if sends block, so this is intentionally small and finite rather than
// unbounded.
const outboxSize = 32

// Connection adapts a *websocket.Conn to room.Connection: every Send
// method marshals the appropriate frame and enqueues it on outbox rather
// than writing to the socket directly, so a room actor calling SendUpdate
// never blocks on a slow or wedged client.
type Connection struct {
	id        string
	conn      *websocket.Conn
	room      *room.Room
	logger    *zap.Logger
	outbox    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection wraps conn for noteID's room. Call Start to begin the
// read and write loops.
func NewConnection(id string, conn *websocket.Conn, r *room.Room, logger *zap.Logger) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		room:   r,
		logger: logger,
		outbox: make(chan []byte, outboxSize),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// Start joins the room and launches the read/write goroutines. It returns
// immediately; the connection runs until the socket closes or the room
// drops it.
func (c *Connection) Start() {
	c.room.Join(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *Connection) readLoop() {
	defer func() {
		c.room.Leave(c.id)
		_ = c.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue // malformed message: silently ignored.
		}
		if frame.Type != "sync" {
			continue // non-sync frames are dropped per the protocol.
		}

		var payload syncPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			continue
		}
		ops, err := fromWireOps(payload.Operations)
		if err != nil {
			continue
		}
		c.room.Sync(c, room.SyncRequest{BaseHash: payload.BaseHash, Operations: ops})
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case buf, ok := <-c.outbox:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				c.logger.Warn("websocket write error", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) enqueue(frameType string, payload interface{}) error {
	buf, err := encodeFrame(frameType, payload)
	if err != nil {
		return err
	}
	select {
	case c.outbox <- buf:
		return nil
	default:
		return fmt.Errorf("outbox full for connection %s", c.id)
	}
}

func (c *Connection) SendAck(a room.Ack) error {
	return c.enqueue("ack", ackPayload{NewHash: a.NewHash})
}

func (c *Connection) SendUpdate(u room.Update) error {
	return c.enqueue("update", updatePayload{LatestHash: u.LatestHash, Operations: toWireOps(u.Operations)})
}

func (c *Connection) SendConflict(cf room.Conflict) error {
	return c.enqueue("conflict", conflictPayload{Message: cf.Message})
}

func (c *Connection) SendError(e room.ErrorReply) error {
	return c.enqueue("error", errorPayload{Message: e.Message})
}

func (c *Connection) SendUserCount(count int) error {
	return c.enqueue("user_count_update", userCountPayload{Count: count})
}

// Close closes the underlying socket and stops the write loop. Safe to
// call more than once, including concurrently — readLoop's defer and the
// room actor's dropConnection can both reach this for the same
// connection, and closeOnce is what keeps that from double-closing done.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
