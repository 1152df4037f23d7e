package room

import "collabnote/ot"

// SyncRequest is the payload of a client->server "sync" message: the
// commit hash the client authored Operations against, and the operations
// themselves.
type SyncRequest struct {
	BaseHash   string
	Operations []ot.Operation
}

// Ack is sent to the sender of a SyncRequest once its operations (or a
// merged result of them) have been committed.
type Ack struct {
	NewHash string
}

// Update is sent to every other connection in the room: the room's new
// HEAD and the operations those connections need to apply to their own
// synchronized content to catch up.
type Update struct {
	LatestHash string
	Operations []ot.Operation
}

// Conflict reports an unrecoverable OT failure for the sender's own
// request; the client is expected to discard local state and reload.
type Conflict struct {
	Message string
}

// ErrorReply reports a request-level problem — today, only an unknown
// base hash — rather than an OT failure; the client drops its outstanding
// operations and reloads the initial content.
type ErrorReply struct {
	Message string
}
