package transport

import (
	"encoding/json"
	"fmt"

	"collabnote/ot"
)

// Frame is the {type, payload} envelope every WebSocket message uses in
// both directions. Payload is re-marshaled lazily so a frame whose type
// this server doesn't recognize can still be decoded and silently
// dropped instead of failing the whole read.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wireOp is the over-the-wire encoding of an ot.Operation: a single tagged
// shape with Length/Text only present for the operation kinds that use
// them, rather than three separate message types.
type wireOp struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Length   int    `json:"length,omitempty"`
	Text     string `json:"text,omitempty"`
}

func toWireOps(ops []ot.Operation) []wireOp {
	wire := make([]wireOp, len(ops))
	for i, op := range ops {
		wire[i] = wireOp{Type: op.Kind.String(), Position: op.Position, Length: op.Length, Text: op.Text}
	}
	return wire
}

func fromWireOps(wire []wireOp) ([]ot.Operation, error) {
	ops := make([]ot.Operation, len(wire))
	for i, w := range wire {
		switch w.Type {
		case "retain":
			ops[i] = ot.RetainOp(w.Length, w.Position)
		case "insert":
			ops[i] = ot.InsertOp(w.Text, w.Position)
		case "delete":
			ops[i] = ot.DeleteOp(w.Length, w.Position)
		default:
			return nil, fmt.Errorf("unknown operation type %q", w.Type)
		}
	}
	return ops, nil
}

// syncPayload is the client->server "sync" frame payload.
type syncPayload struct {
	BaseHash   string   `json:"base_hash"`
	Operations []wireOp `json:"operations"`
}

// ackPayload is the server->client "ack" frame payload.
type ackPayload struct {
	NewHash string `json:"new_hash"`
}

// updatePayload is the server->client "update" frame payload.
type updatePayload struct {
	LatestHash string   `json:"latest_hash"`
	Operations []wireOp `json:"operations"`
}

// conflictPayload is the server->client "conflict" frame payload.
type conflictPayload struct {
	Message string `json:"message"`
}

// errorPayload is the server->client "error" frame payload.
type errorPayload struct {
	Message string `json:"message"`
}

// userCountPayload is the server->client "user_count_update" frame payload.
type userCountPayload struct {
	Count int `json:"count"`
}

func encodeFrame(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}
