package room

// Connection is how a room talks back to one connected client.
// transport.Connection is the concrete implementation that actually
// writes JSON frames to a socket, which keeps the merge protocol (this
// package) free of any transport detail.
//
// Send methods are expected to be non-blocking (buffer-and-drop rather
// than block the room actor) — a slow connection must not stall the
// room. A Send that cannot be delivered should return an error. The room
// drops the connection, without retrying, when SendUpdate or
// SendUserCount fails; errors from SendAck, SendConflict and SendError
// are ignored.
type Connection interface {
	ID() string
	SendAck(Ack) error
	SendUpdate(Update) error
	SendConflict(Conflict) error
	SendError(ErrorReply) error
	SendUserCount(count int) error
	Close() error
}
