// Package client implements the three-buffer reconciliation state machine
// a collaborative editor client runs against the server's merge protocol.
// Client is transport-agnostic: it never touches a socket directly, only
// the Transport interface, so the same type can be driven directly
// against an in-process room.Room in tests or wrapped around a real
// WebSocket connection for interactive use.
package client

import (
	"sync"
	"time"

	"collabnote/ot"
)

// DefaultDebounce is the quiet period between the last local keystroke
// and diffing+sending it.
const DefaultDebounce = 500 * time.Millisecond

// Transport is how a Client sends its own edits onward. Implementations
// submit req to the server (or, in tests, directly to a room.Room) and
// arrange for the corresponding Ack/Update/Conflict/Error to later be
// delivered back via the matching Handle* method.
type Transport interface {
	SendSync(req Request)
}

// Request mirrors room.SyncRequest without importing the room package, so
// client has no dependency on the server-side merge implementation.
type Request struct {
	BaseHash   string
	Operations []ot.Operation
}

// Client holds one editor session's reconciliation state: the
// synchronized/in-flight/pending buffers plus the editor's current raw
// text.
type Client struct {
	NoteID string

	mu sync.Mutex

	latestHash          string
	synchronizedContent string
	inFlightOps         []ot.Operation // nil means "none"
	pendingOps          []ot.Operation // nil means "none"

	editorText string

	transport Transport
	debounce  time.Duration
	timer     *time.Timer

	lastConflict string
	lastError    string
}

// New creates a Client already synchronized at (hash, content) — the state
// a fresh WebSocket connection (or reconnect) starts from after fetching
// initial content.
func New(noteID, hash, content string, transport Transport) *Client {
	return &Client{
		NoteID:              noteID,
		latestHash:          hash,
		synchronizedContent: content,
		editorText:          content,
		transport:           transport,
		debounce:            DefaultDebounce,
	}
}

// SetDebounce overrides the quiet period before local edits are sent.
// Exported mainly so tests can shrink or eliminate it.
func (c *Client) SetDebounce(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce = d
}

// Edit records the editor's new full text and (re)arms the debounce timer.
// When the timer fires, Flush runs on its own goroutine — the same
// behavior a browser's setTimeout-driven debounce would have.
func (c *Client) Edit(text string) {
	c.mu.Lock()
	c.editorText = text
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.Flush)
	c.mu.Unlock()
}

// Flush runs the "local input" transition immediately, bypassing the
// debounce timer. Edit schedules this automatically; tests and callers
// that don't want to wait out the debounce call it directly.
func (c *Client) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Client) flushLocked() {
	predicted := c.predictedLocked()
	ops := ot.DiffToOps(ot.Diff(predicted, c.editorText))
	if len(ops) == 0 {
		return
	}

	if c.inFlightOps == nil {
		c.inFlightOps = ops
		c.transport.SendSync(Request{BaseHash: c.latestHash, Operations: ops})
		return
	}

	c.pendingOps = append(c.pendingOps, ops...)
}

// HandleAck processes the server's acknowledgement of this client's own
// in-flight operations, promoting them into synchronized_content and
// sending any accumulated pending operations next.
func (c *Client) HandleAck(newHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.synchronizedContent = c.applyOrKeep(c.synchronizedContent, c.inFlightOps)
	c.latestHash = newHash
	c.inFlightOps = nil

	if len(c.pendingOps) > 0 {
		ops := c.pendingOps
		c.pendingOps = nil
		c.inFlightOps = ops
		c.transport.SendSync(Request{BaseHash: c.latestHash, Operations: ops})
	}
}

// HandleUpdate integrates a remote commit: folds it into synchronized
// content, then rebases whatever this client still has outstanding against
// it so a subsequent Flush (or HandleAck's send) stays consistent with the
// new server state.
func (c *Client) HandleUpdate(newHash string, operations []ot.Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.synchronizedContent = c.applyOrKeep(c.synchronizedContent, operations)
	if c.inFlightOps != nil {
		c.inFlightOps = ot.Transform(c.inFlightOps, operations)
	}
	if c.pendingOps != nil {
		c.pendingOps = ot.Transform(c.pendingOps, operations)
	}
	c.latestHash = newHash
	c.editorText = c.predictedLocked()
}

// HandleConflict treats the room's conflict reply as unrecoverable: local
// state is discarded. The caller is expected to re-fetch initial content
// and call Reset; HandleConflict only clears the buffers and records the
// message so a caller inspecting LastConflict knows to do so.
func (c *Client) HandleConflict(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastConflict = message
	c.inFlightOps = nil
	c.pendingOps = nil
}

// HandleError processes a request-level error (today, only an unknown base
// hash) the same way as a conflict: discard in-flight state and let the
// caller refetch.
func (c *Client) HandleError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = message
	c.inFlightOps = nil
	c.pendingOps = nil
}

// Reset re-synchronizes the client at (hash, content), as happens after a
// conflict, a request error, or a reconnect following a transport close.
func (c *Client) Reset(hash, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latestHash = hash
	c.synchronizedContent = content
	c.editorText = content
	c.inFlightOps = nil
	c.pendingOps = nil
}

// Predicted returns what the editor should currently display: synchronized
// content with in-flight and pending operations layered on top.
func (c *Client) Predicted() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.predictedLocked()
}

func (c *Client) predictedLocked() string {
	text := c.applyOrKeep(c.synchronizedContent, c.inFlightOps)
	return c.applyOrKeep(text, c.pendingOps)
}

// applyOrKeep applies ops to content, falling back to content unchanged on
// an OT error. A well-behaved server never sends a client operations that
// fail to apply to the content it is documented to apply against; this
// only guards against that invariant being violated rather than crashing
// the editor session outright.
func (c *Client) applyOrKeep(content string, ops []ot.Operation) string {
	result, err := ot.Apply(content, ops)
	if err != nil {
		c.lastError = err.Error()
		return content
	}
	return result
}

// LatestHash, SynchronizedContent, InFlight, and Pending expose buffer
// state for assertions and for a UI layer deciding what to render.
func (c *Client) LatestHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestHash
}

func (c *Client) SynchronizedContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synchronizedContent
}

func (c *Client) InFlight() []ot.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ot.Operation(nil), c.inFlightOps...)
}

func (c *Client) Pending() []ot.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ot.Operation(nil), c.pendingOps...)
}

func (c *Client) LastConflict() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastConflict
}

func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}
