// Package server defines the wire envelope exchanged over a WebSocket
// connection and utility helpers that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Inbound event types.
const (
	EventRequestIdentity = "requestIdentity"
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventSendMessage     = "sendMessage"
)

// Outbound event types.
const (
	EventIdentity = "identity"
	EventMessages = "messages"
)

// Envelope is the JSON frame carried by every WebSocket text message.
// Ref is echoed back on replies so a client can correlate them.
type Envelope struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IdentityRequest is the payload of a requestIdentity event.
type IdentityRequest struct {
	Username string `json:"username"`
}

// JoinRoomRequest is the payload of a joinRoom event.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// SendMessageRequest is the payload of a sendMessage event.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// encodeFrame marshals an outbound envelope around payload.
func encodeFrame(eventType, ref string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Ref: ref, Payload: raw})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
